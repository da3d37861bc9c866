package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Upserts tracks upsert batches applied by the writer by result
	Upserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_upserts_total",
			Help: "Total number of upsert batches applied to the local store",
		},
		[]string{"result"}, // "ok", "error", "cancelled"
	)

	// UpsertedRecords tracks the number of records written
	UpsertedRecords = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "store_upserted_records_total",
			Help: "Total number of repository records upserted into the local store",
		},
	)

	// WriteQueueDepth tracks batches waiting for the sequential writer
	WriteQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "store_write_queue_depth",
			Help: "Number of upsert batches waiting for the sequential writer",
		},
	)
)
