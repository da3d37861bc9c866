// Package backfill coordinates lazy remote backfill for one search session.
//
// A Controller is bound to a single Session. Readers call Signal when a local
// read reaches the edge of what is stored; the controller then fetches the
// session's next remote page, persists it through the shared store writer and
// advances the page cursor. At most one fetch is outstanding per session:
// signals that arrive while a fetch is in flight are dropped, never queued.
//
// Fetch failures are not returned to the reader. They are published as
// human-readable messages on the session's ErrorStream, the cursor stays
// where it was and the next boundary signal retries the same page.
//
// Lifecycle:
//
//	Idle --Signal--> Fetching --success--> Idle (cursor+1)
//	                    |
//	                    +--fetch error--> Idle (message published)
//	                    +--cancelled----> Idle (result dropped)
//
// A successful empty page marks the session exhausted; later signals are
// no-ops.
package backfill
