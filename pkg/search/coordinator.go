// Package search turns a query string into a paged local view bound to a
// backfill session. Reads always come from the local store; reaching the edge
// of the stored results signals the session's controller to fetch more.
package search

import (
	"context"
	"fmt"
	"sync"

	"github.com/Sternrassler/repo-backfill/pkg/backfill"
	"github.com/Sternrassler/repo-backfill/pkg/logging"
	"github.com/Sternrassler/repo-backfill/pkg/pagination"
	"github.com/Sternrassler/repo-backfill/pkg/repo"
	"github.com/Sternrassler/repo-backfill/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	searchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "search_sessions_total",
		Help: "Total search sessions started",
	})

	pageReadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "search_page_reads_total",
		Help: "Total local page reads by detected boundary",
	}, []string{"boundary"})
)

// Config holds coordinator configuration.
type Config struct {
	// LocalPageSize is the number of records per local page.
	LocalPageSize int

	// RemotePageSize is the number of records per remote fetch.
	RemotePageSize int
}

// DefaultConfig returns the default page sizes.
func DefaultConfig() Config {
	return Config{
		LocalPageSize:  pagination.LocalPageSize,
		RemotePageSize: pagination.RemotePageSize,
	}
}

// Coordinator starts search sessions over a shared store and writer.
type Coordinator struct {
	store   store.Store
	writer  backfill.Upserter
	fetcher pagination.PageFetcher
	config  Config
	logger  zerolog.Logger

	mu        sync.RWMutex
	lastQuery string
}

// NewCoordinator creates a coordinator. writer must be the single
// sequential write path in front of st.
func NewCoordinator(st store.Store, writer backfill.Upserter, fetcher pagination.PageFetcher, cfg Config) *Coordinator {
	if st == nil || writer == nil || fetcher == nil {
		panic("search: store, writer and fetcher are required")
	}
	if cfg.LocalPageSize <= 0 {
		cfg.LocalPageSize = pagination.LocalPageSize
	}
	if cfg.RemotePageSize <= 0 {
		cfg.RemotePageSize = pagination.RemotePageSize
	}

	return &Coordinator{
		store:   st,
		writer:  writer,
		fetcher: fetcher,
		config:  cfg,
		logger:  logging.NewLogger("search"),
	}
}

// Result is what a search hands back: the session, the paged view over the
// local store and the session's fetch failure stream.
type Result struct {
	Session    *backfill.Session
	Controller *backfill.Controller
	View       *View
	Errors     *backfill.ErrorStream
}

// Search starts a new session for query. Every call creates an independent
// session, even for a query seen before. ctx scopes the session; cancel it
// to discard the session's in-flight fetch results.
func (c *Coordinator) Search(ctx context.Context, query string) *Result {
	session := backfill.NewSession(ctx, query)
	controller := backfill.NewController(session, c.fetcher, c.writer, backfill.Config{
		PageSize: c.config.RemotePageSize,
	})

	c.mu.Lock()
	c.lastQuery = query
	c.mu.Unlock()

	searchesTotal.Inc()
	logger := logging.WithSession(c.logger, session.ID.String(), query)
	logger.Info().Msg("Search session started")

	return &Result{
		Session:    session,
		Controller: controller,
		View: &View{
			store:      c.store,
			controller: controller,
			pattern:    store.Pattern(query),
			pageSize:   c.config.LocalPageSize,
		},
		Errors: session.Errors(),
	}
}

// LastQuery returns the query of the most recent Search call.
func (c *Coordinator) LastQuery() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastQuery
}

// View is a paged read of the local store filtered by one session's query.
type View struct {
	store      store.Store
	controller *backfill.Controller
	pattern    string
	pageSize   int
}

// Page is one local page of results.
type Page struct {
	// Index is the 0-based local page index.
	Index int

	// Items are the stored records of this page in star order.
	Items []repo.Repo

	// HasMore reports whether further records are stored past this page.
	HasMore bool

	// Boundary is what the read detected.
	Boundary pagination.Boundary

	// Backfilling reports whether a remote fetch was in flight after the read.
	Backfilling bool
}

// Pattern returns the store pattern of the view's query.
func (v *View) Pattern() string {
	return v.pattern
}

// Page reads local page index. A read that finds no records at all, or that
// contains the last stored record, signals the controller to fetch the next
// remote page. The read itself never waits for the fetch.
func (v *View) Page(ctx context.Context, index int) (*Page, error) {
	if index < 0 {
		return nil, fmt.Errorf("page index must be >= 0 (got %d)", index)
	}

	offset, limit := pagination.Window(index, v.pageSize)
	rows, err := v.store.Query(ctx, v.pattern, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("query local page %d: %w", index, err)
	}

	boundary := pagination.DetectBoundary(index, len(rows), v.pageSize)
	pageReadsTotal.WithLabelValues(boundary.String()).Inc()
	if boundary != pagination.BoundaryNone {
		v.controller.Signal(boundary)
	}

	page := &Page{
		Index:       index,
		Items:       rows,
		HasMore:     len(rows) > v.pageSize,
		Boundary:    boundary,
		Backfilling: v.controller.Session().InFlight(),
	}
	if page.HasMore {
		page.Items = rows[:v.pageSize]
	}
	return page, nil
}

// Count returns the number of stored records matching the view's query.
func (v *View) Count(ctx context.Context) (int, error) {
	return v.store.Count(ctx, v.pattern)
}
