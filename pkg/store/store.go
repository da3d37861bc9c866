// Package store provides the local, ordered, pattern-queryable repository
// store that backs the search read path, plus the single sequential write
// path shared by every backfill session.
package store

import (
	"context"
	"errors"

	"github.com/Sternrassler/repo-backfill/pkg/repo"
)

var (
	// ErrInvalidWindow is returned for a negative offset or a non-positive limit.
	ErrInvalidWindow = errors.New("invalid query window")

	// ErrWriterClosed is returned by Writer.Upsert after Close.
	ErrWriterClosed = errors.New("store writer closed")
)

// Store is the local repository store.
//
// Upsert inserts or replaces repositories by ID. It is atomic per call and
// idempotent: applying the same batch twice leaves the same state as
// applying it once.
//
// Query returns repositories whose name or description matches pattern
// (case-insensitive LIKE, see Pattern), ordered by stars descending, then
// name ascending, then ID ascending.
type Store interface {
	Upsert(ctx context.Context, repos []repo.Repo) error
	Query(ctx context.Context, pattern string, offset, limit int) ([]repo.Repo, error)
	Count(ctx context.Context, pattern string) (int, error)
}

func validateWindow(offset, limit int) error {
	if offset < 0 || limit <= 0 {
		return ErrInvalidWindow
	}
	return nil
}
