// Package ratelimit tracks the GitHub search API rate limit from response
// headers and gates outgoing requests. The state lives in Redis so every
// process sharing a token sees the same budget.
package ratelimit

import (
	"time"
)

// RedisKey is the hash holding the shared search rate limit state.
const RedisKey = "github:rate_limit:search"

// Thresholds for request gating, in requests remaining in the window.
// The authenticated search budget is 30 requests per minute.
const (
	// ThresholdCritical blocks requests while remaining is below it.
	ThresholdCritical = 1

	// ThresholdWarning throttles requests while remaining is below it.
	ThresholdWarning = 3

	// ThresholdHealthy marks the state healthy at or above it.
	ThresholdHealthy = 5
)

// State is the current GitHub search rate limit window.
type State struct {
	// Remaining is X-RateLimit-Remaining.
	Remaining int `json:"remaining"`

	// Limit is X-RateLimit-Limit.
	Limit int `json:"limit"`

	// ResetAt is X-RateLimit-Reset (epoch seconds) as a time.
	ResetAt time.Time `json:"reset_at"`

	LastUpdate time.Time `json:"last_update"`
	IsHealthy  bool      `json:"is_healthy"`
}

// IsStale returns true if the state is older than maxAge.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// WindowElapsed reports whether the rate limit window has already reset.
func (s *State) WindowElapsed() bool {
	return !time.Now().Before(s.ResetAt)
}

// NeedsCriticalBlock returns true if requests must wait for the window reset.
func (s *State) NeedsCriticalBlock() bool {
	return s.Remaining < ThresholdCritical && !s.WindowElapsed()
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *State) NeedsThrottling() bool {
	return s.Remaining < ThresholdWarning && !s.WindowElapsed() && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until the window resets, or 0.
func (s *State) TimeUntilReset() time.Duration {
	d := time.Until(s.ResetAt)
	if d < 0 {
		return 0
	}
	return d
}

// UpdateHealth updates IsHealthy from Remaining.
func (s *State) UpdateHealth() {
	s.IsHealthy = s.Remaining >= ThresholdHealthy || s.WindowElapsed()
}
