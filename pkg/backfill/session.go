package backfill

import (
	"context"
	"sync/atomic"

	"github.com/Sternrassler/repo-backfill/pkg/pagination"
	"github.com/google/uuid"
)

// Session is the backfill state of one search query.
type Session struct {
	// ID identifies the session in logs and the HTTP API.
	ID uuid.UUID

	// Query is the raw search string. It never changes.
	Query string

	ctx       context.Context
	cursor    atomic.Int64
	inFlight  atomic.Bool
	exhausted atomic.Bool
	errors    *ErrorStream
}

// NewSession creates a session for query. ctx scopes the session: once it
// is done, signals are dropped and fetched results are discarded.
func NewSession(ctx context.Context, query string) *Session {
	s := &Session{
		ID:     uuid.New(),
		Query:  query,
		ctx:    ctx,
		errors: NewErrorStream(),
	}
	s.cursor.Store(pagination.FirstRemotePage)
	return s
}

// Cursor returns the next remote page to fetch.
func (s *Session) Cursor() int {
	return int(s.cursor.Load())
}

// InFlight reports whether a fetch is outstanding.
func (s *Session) InFlight() bool {
	return s.inFlight.Load()
}

// Exhausted reports whether the remote source returned an empty page.
func (s *Session) Exhausted() bool {
	return s.exhausted.Load()
}

// Errors returns the session's fetch failure stream.
func (s *Session) Errors() *ErrorStream {
	return s.errors
}

// Context returns the context scoping the session.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Done reports whether the session's context has ended.
func (s *Session) Done() bool {
	return s.ctx.Err() != nil
}
