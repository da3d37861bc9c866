package store

import (
	"context"
	"sync"

	"github.com/Sternrassler/repo-backfill/pkg/repo"
	"github.com/rs/zerolog"
)

// DefaultQueueSize is the writer's job buffer when none is configured.
const DefaultQueueSize = 64

type writeJob struct {
	ctx    context.Context
	repos  []repo.Repo
	result chan error
}

// Writer is the single sequential write path in front of a Store. All
// sessions share one Writer, so mutations are totally ordered and a batch is
// never interleaved with another.
type Writer struct {
	store  Store
	jobs   chan writeJob
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewWriter starts the writer goroutine. Close must be called to stop it.
func NewWriter(s Store, queueSize int, logger zerolog.Logger) *Writer {
	if s == nil {
		panic("store cannot be nil")
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	w := &Writer{
		store:  s,
		jobs:   make(chan writeJob, queueSize),
		logger: logger,
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

// Upsert enqueues a batch and waits until the writer has applied it.
// A batch whose context is cancelled before the writer reaches it is
// skipped and the context error returned.
func (w *Writer) Upsert(ctx context.Context, repos []repo.Repo) error {
	job := writeJob{
		ctx:    ctx,
		repos:  repos,
		result: make(chan error, 1),
	}

	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return ErrWriterClosed
	}
	select {
	case w.jobs <- job:
		WriteQueueDepth.Inc()
	case <-ctx.Done():
		w.mu.RUnlock()
		return ctx.Err()
	}
	w.mu.RUnlock()

	return <-job.result
}

// Close stops accepting batches, applies the ones already queued and waits
// for the writer goroutine to exit.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return nil
	}
	w.closed = true
	close(w.jobs)
	w.mu.Unlock()

	<-w.done
	return nil
}

func (w *Writer) run() {
	defer close(w.done)

	for job := range w.jobs {
		WriteQueueDepth.Dec()
		job.result <- w.apply(job)
	}
}

func (w *Writer) apply(job writeJob) error {
	if err := job.ctx.Err(); err != nil {
		Upserts.WithLabelValues("cancelled").Inc()
		w.logger.Debug().Int("records", len(job.repos)).Msg("Skipping upsert for cancelled session")
		return err
	}

	if err := w.store.Upsert(job.ctx, job.repos); err != nil {
		Upserts.WithLabelValues("error").Inc()
		w.logger.Error().Err(err).Int("records", len(job.repos)).Msg("Upsert failed")
		return err
	}

	Upserts.WithLabelValues("ok").Inc()
	UpsertedRecords.Add(float64(len(job.repos)))
	return nil
}
