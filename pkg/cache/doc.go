// Package cache stores GitHub API responses in Redis so repeated searches
// can be revalidated with conditional requests instead of full ones.
//
// GitHub does not count a 304 Not Modified answer to a conditional request
// against the caller's rate limit, which matters for the search API with its
// small per-minute budget. The manager keeps each response body with its
// ETag and Last-Modified validators:
//
//   - while an entry is fresh (Cache-Control max-age, else Expires, else
//     DefaultTTL) it is served without a request
//   - once stale it is kept for RevalidateWindow so the next request can
//     carry If-None-Match / If-Modified-Since
//   - a 304 refreshes the entry's freshness via Refresh
//
// # Usage
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.Key{
//		Endpoint:    "/search/repositories",
//		QueryParams: url.Values{"q": {"ui in:name,description"}, "page": {"1"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	switch {
//	case err == cache.ErrCacheMiss:
//		// plain request
//	case !entry.IsExpired():
//		// serve entry.Data
//	default:
//		cache.AddConditionalHeaders(req, entry)
//	}
//
// # Metrics
//
//   - github_cache_hits_total{state="fresh|stale"}
//   - github_cache_misses_total
//   - github_304_responses_total
//   - github_conditional_requests_total
//   - github_cache_errors_total{operation}
package cache
