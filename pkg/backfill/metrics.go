package backfill

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SignalsTotal tracks boundary signals by kind and outcome
	SignalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backfill_signals_total",
			Help: "Total boundary signals received by kind and outcome",
		},
		[]string{"kind", "outcome"}, // outcome: "dispatched", "in_flight", "exhausted", "cancelled", "failed", "ignored"
	)

	// FetchesTotal tracks completed backfill fetches by result
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backfill_fetches_total",
			Help: "Total backfill fetches by result",
		},
		[]string{"result"}, // "success", "error", "cancelled", "store_error"
	)

	// FetchDuration tracks fetch plus persist time
	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "backfill_fetch_duration_seconds",
			Help:    "Duration of a backfill fetch including persistence",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	// PagesAdvanced tracks cursor advances
	PagesAdvanced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "backfill_pages_advanced_total",
			Help: "Total number of remote pages persisted and advanced past",
		},
	)

	errorStreamDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "backfill_error_stream_dropped_total",
			Help: "Error messages not delivered to a slow subscriber",
		},
	)
)
