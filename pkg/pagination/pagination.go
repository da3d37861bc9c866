// Package pagination holds the paging contract between the local read path
// and the remote source: page sizes, local page windows and boundary
// detection.
package pagination

import (
	"context"

	"github.com/Sternrassler/repo-backfill/pkg/repo"
)

const (
	// LocalPageSize is the number of records one local read returns.
	LocalPageSize = 20

	// RemotePageSize is the number of records requested per remote fetch.
	// It is larger than LocalPageSize so one fetch covers several scroll steps.
	RemotePageSize = 50

	// FirstRemotePage is the 1-based index of the first remote page.
	FirstRemotePage = 1
)

// PageFetcher fetches one page of repositories for a query from a remote
// source. Implementations make a single outbound call and never retry.
type PageFetcher interface {
	FetchPage(ctx context.Context, query string, page, perPage int) ([]repo.Repo, error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc func(ctx context.Context, query string, page, perPage int) ([]repo.Repo, error)

// FetchPage calls f.
func (f PageFetcherFunc) FetchPage(ctx context.Context, query string, page, perPage int) ([]repo.Repo, error) {
	return f(ctx, query, page, perPage)
}

// Boundary is a read-side signal that local data has run out.
type Boundary int

const (
	// BoundaryNone means the read stayed inside locally known data.
	BoundaryNone Boundary = iota

	// BoundaryZeroItems means the store holds no items for the query.
	BoundaryZeroItems

	// BoundaryItemAtEnd means the consumer reached the last loaded item.
	BoundaryItemAtEnd
)

// String returns the metric/log label of b.
func (b Boundary) String() string {
	switch b {
	case BoundaryZeroItems:
		return "zero_items"
	case BoundaryItemAtEnd:
		return "item_at_end"
	default:
		return "none"
	}
}

// Window converts a 0-based local page index into a store offset and limit.
// The limit is one larger than pageSize so the caller can tell whether rows
// exist past the page.
func Window(index, pageSize int) (offset, limit int) {
	if index < 0 {
		index = 0
	}
	if pageSize <= 0 {
		pageSize = LocalPageSize
	}
	return index * pageSize, pageSize + 1
}

// DetectBoundary classifies a local read of page index that returned rows
// records using the limit from Window.
func DetectBoundary(index, rows, pageSize int) Boundary {
	if pageSize <= 0 {
		pageSize = LocalPageSize
	}
	switch {
	case rows == 0 && index == 0:
		return BoundaryZeroItems
	case rows > 0 && rows <= pageSize:
		return BoundaryItemAtEnd
	default:
		return BoundaryNone
	}
}
