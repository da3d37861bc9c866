package main

import (
	"context"

	"github.com/Sternrassler/repo-backfill/pkg/search"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "server_sessions_active",
		Help: "Search sessions held by the HTTP server",
	})

	evictedSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "server_sessions_evicted_total",
		Help: "Search sessions evicted from the registry and cancelled",
	})
)

type registryEntry struct {
	result *search.Result
	cancel context.CancelFunc
}

// sessionRegistry holds the sessions created over HTTP, bounded by size.
// The least recently used session is evicted and its context cancelled.
type sessionRegistry struct {
	cache *lru.Cache[uuid.UUID, *registryEntry]
}

func newSessionRegistry(size int) *sessionRegistry {
	if size <= 0 {
		size = 1
	}

	// Removal, eviction and purge all end the session.
	cache, err := lru.NewWithEvict(size, func(_ uuid.UUID, e *registryEntry) {
		e.cancel()
		activeSessions.Dec()
	})
	if err != nil {
		panic(err)
	}
	return &sessionRegistry{cache: cache}
}

// add registers result. cancel ends the session's context.
func (r *sessionRegistry) add(result *search.Result, cancel context.CancelFunc) {
	activeSessions.Inc()
	if r.cache.Add(result.Session.ID, &registryEntry{result: result, cancel: cancel}) {
		evictedSessions.Inc()
	}
}

// get returns the session and marks it recently used.
func (r *sessionRegistry) get(id uuid.UUID) (*search.Result, bool) {
	entry, ok := r.cache.Get(id)
	if !ok {
		return nil, false
	}
	return entry.result, true
}

// remove cancels and forgets the session.
func (r *sessionRegistry) remove(id uuid.UUID) bool {
	return r.cache.Remove(id)
}

// closeAll cancels every session.
func (r *sessionRegistry) closeAll() {
	r.cache.Purge()
}

func (r *sessionRegistry) len() int {
	return r.cache.Len()
}
