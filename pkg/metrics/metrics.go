// Package metrics documents the Prometheus metrics of repo-backfill and
// exposes the registry they live in. Collectors are defined with promauto in
// the packages that update them, so this package imports none of them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every collector is registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer backing Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Backfill Metrics (pkg/backfill):
//   - backfill_signals_total{kind, outcome} (Counter): Boundary signals by kind and outcome
//     (dispatched, in_flight, exhausted, cancelled, failed, ignored)
//   - backfill_fetches_total{result} (Counter): Completed fetches (success, error, cancelled, store_error)
//   - backfill_fetch_duration_seconds (Histogram): Fetch plus persist duration
//   - backfill_pages_advanced_total (Counter): Remote pages persisted
//   - backfill_error_stream_dropped_total (Counter): Error messages a slow subscriber missed
//
// Search Metrics (pkg/search):
//   - search_sessions_total (Counter): Search sessions started
//   - search_page_reads_total{boundary} (Counter): Local page reads by detected boundary
//
// Store Metrics (pkg/store):
//   - store_upserts_total{result} (Counter): Upsert batches (ok, error, cancelled)
//   - store_upserted_records_total (Counter): Records written
//   - store_write_queue_depth (Gauge): Batches waiting for the sequential writer
//
// GitHub Metrics (pkg/github):
//   - github_requests_total{status} (Counter): Requests by HTTP status, "cache", "rate_limited" or "network_error"
//   - github_request_duration_seconds (Histogram): FetchPage duration
//   - github_errors_total{class} (Counter): Failed fetches by class
//
// Cache Metrics (pkg/cache):
//   - github_cache_hits_total{state} (Counter): Cache hits (fresh, stale)
//   - github_cache_misses_total (Counter): Cache misses
//   - github_304_responses_total (Counter): 304 Not Modified responses
//   - github_conditional_requests_total (Counter): Conditional requests sent
//   - github_cache_errors_total{operation} (Counter): Cache operation errors
//
// Rate Limit Metrics (pkg/ratelimit):
//   - github_rate_limit_remaining (Gauge): Search requests left in the window
//   - github_rate_limit_blocks_total (Counter): Requests blocked until reset
//   - github_rate_limit_throttles_total (Counter): Requests delayed
//
// Example Prometheus Queries:
//
//   # Fetch failure ratio
//   sum(rate(backfill_fetches_total{result="error"}[5m])) / sum(rate(backfill_fetches_total[5m]))
//
//   # Signals dropped because a fetch was already running
//   rate(backfill_signals_total{outcome="in_flight"}[5m])
//
//   # Cache hit rate
//   sum(rate(github_cache_hits_total[5m])) /
//   (sum(rate(github_cache_hits_total[5m])) + sum(rate(github_cache_misses_total[5m])))
//
//   # P95 GitHub latency
//   histogram_quantile(0.95, rate(github_request_duration_seconds_bucket[5m]))
