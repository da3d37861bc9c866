package backfill

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Sternrassler/repo-backfill/pkg/logging"
	"github.com/Sternrassler/repo-backfill/pkg/pagination"
	"github.com/Sternrassler/repo-backfill/pkg/repo"
	"github.com/rs/zerolog"
)

// Upserter persists a batch of repositories. *store.Writer implements it.
type Upserter interface {
	Upsert(ctx context.Context, repos []repo.Repo) error
}

// Config holds controller configuration.
type Config struct {
	// PageSize is the number of records requested per remote page.
	PageSize int
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		PageSize: pagination.RemotePageSize,
	}
}

// Controller runs backfill fetches for one session.
type Controller struct {
	session *Session
	fetcher pagination.PageFetcher
	writer  Upserter
	config  Config
	logger  zerolog.Logger

	// mu orders guard transitions with done so Wait never observes a
	// started fetch through a stale channel.
	mu    sync.Mutex
	done  chan struct{}
	fatal error
}

// NewController binds a controller to session.
func NewController(session *Session, fetcher pagination.PageFetcher, writer Upserter, cfg Config) *Controller {
	if session == nil || fetcher == nil || writer == nil {
		panic("backfill: session, fetcher and writer are required")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = pagination.RemotePageSize
	}

	return &Controller{
		session: session,
		fetcher: fetcher,
		writer:  writer,
		config:  cfg,
		logger:  logging.WithSession(logging.NewLogger("backfill"), session.ID.String(), session.Query),
	}
}

// Session returns the bound session.
func (c *Controller) Session() *Session {
	return c.session
}

// Signal reports a boundary event. It returns true if a fetch of the
// session's cursor page was started, and false if the signal was dropped
// because a fetch is already in flight, the session is exhausted or
// cancelled, or a store failure stopped the controller. It never blocks on
// the fetch.
func (c *Controller) Signal(kind pagination.Boundary) bool {
	outcome := c.trySignal(kind)
	SignalsTotal.WithLabelValues(kind.String(), outcome).Inc()
	return outcome == "dispatched"
}

func (c *Controller) trySignal(kind pagination.Boundary) string {
	if kind != pagination.BoundaryZeroItems && kind != pagination.BoundaryItemAtEnd {
		return "ignored"
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// The fetch goroutine sets exhausted before it clears the guard under
	// mu, so these checks must run under mu too.
	if c.session.Done() {
		return "cancelled"
	}
	if c.session.Exhausted() {
		return "exhausted"
	}
	if c.fatal != nil {
		return "failed"
	}
	if !c.session.inFlight.CompareAndSwap(false, true) {
		return "in_flight"
	}

	done := make(chan struct{})
	c.done = done
	page := c.session.Cursor()

	c.logger.Debug().
		Str("kind", kind.String()).
		Int("page", page).
		Msg("Boundary reached, starting backfill")

	go c.fetch(page, done)
	return "dispatched"
}

// fetch fetches and persists page, then releases the guard.
func (c *Controller) fetch(page int, done chan struct{}) {
	ctx := c.session.Context()
	start := time.Now()

	defer func() {
		FetchDuration.Observe(time.Since(start).Seconds())
		c.mu.Lock()
		c.session.inFlight.Store(false)
		close(done)
		c.mu.Unlock()
	}()

	records, err := c.fetcher.FetchPage(ctx, c.session.Query, page, c.config.PageSize)
	if ctx.Err() != nil {
		FetchesTotal.WithLabelValues("cancelled").Inc()
		c.logger.Debug().Int("page", page).Msg("Session cancelled, dropping fetch result")
		return
	}
	if err != nil {
		FetchesTotal.WithLabelValues("error").Inc()
		c.logger.Warn().Err(err).Int("page", page).Msg("Backfill fetch failed")
		c.session.errors.Publish(err.Error())
		return
	}

	if err := c.writer.Upsert(ctx, records); err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			FetchesTotal.WithLabelValues("cancelled").Inc()
			c.logger.Debug().Int("page", page).Msg("Session cancelled before persist")
			return
		}

		FetchesTotal.WithLabelValues("store_error").Inc()
		c.logger.Error().Err(err).
			Int("page", page).
			Int("records", len(records)).
			Msg("Failed to persist backfilled page")
		c.mu.Lock()
		if c.fatal == nil {
			c.fatal = err
		}
		c.mu.Unlock()
		return
	}

	c.session.cursor.Add(1)
	PagesAdvanced.Inc()
	if len(records) == 0 {
		c.session.exhausted.Store(true)
		c.logger.Info().Int("page", page).Msg("Remote source exhausted")
	}

	FetchesTotal.WithLabelValues("success").Inc()
	c.logger.Debug().
		Int("page", page).
		Int("records", len(records)).
		Int("next_page", c.session.Cursor()).
		Msg("Backfilled page")
}

// Wait blocks until no fetch is outstanding or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fatal returns the first store failure, or nil. A controller with a store
// failure drops every later signal.
func (c *Controller) Fatal() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatal
}
