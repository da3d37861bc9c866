// Package pagination provides the paging contract for the backfilled search
// read path.
//
// Reads are pull-based: the consumer asks for local page i, which maps to a
// store window via Window. The read returns up to LocalPageSize+1 rows; the
// extra row only tells whether more data is already known locally.
//
//	offset, limit := pagination.Window(i, pagination.LocalPageSize)
//	rows, err := st.Query(ctx, pattern, offset, limit)
//	switch pagination.DetectBoundary(i, len(rows), pagination.LocalPageSize) {
//	case pagination.BoundaryZeroItems, pagination.BoundaryItemAtEnd:
//		// ask the remote source for more
//	}
//
// Remote pages are 1-based and RemotePageSize records long. A read past the
// last local page (index > 0, zero rows) is not a boundary: the consumer
// skipped ahead and the page that holds the last loaded item already
// signalled.
package pagination
