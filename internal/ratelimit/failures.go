// Package ratelimit throttles authentication by client IP. Only failed
// attempts count toward the limit; a successful login clears the IP.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// FailureLimiter tracks auth failures per key (client IP).
type FailureLimiter interface {
	// Allow reports whether the key is still under the failure threshold.
	Allow(key string) bool
	// RecordFailure counts one failed attempt against the key.
	RecordFailure(key string)
	// Reset clears the key's failure history after a successful attempt.
	Reset(key string)
}

// MemoryFailureLimiter keeps failure timestamps in-process with a sliding
// window. State lives for the process lifetime and is not shared across
// instances; use the Redis limiter for multi-instance deployments.
type MemoryFailureLimiter struct {
	threshold int
	window    time.Duration

	mu       sync.Mutex
	failures map[string][]time.Time
}

// NewMemoryFailureLimiter builds an in-process limiter.
func NewMemoryFailureLimiter(threshold int, window time.Duration) (*MemoryFailureLimiter, error) {
	if threshold <= 0 || window <= 0 {
		return nil, errors.New("failure limiter requires positive threshold and window")
	}
	return &MemoryFailureLimiter{
		threshold: threshold,
		window:    window,
		failures:  make(map[string][]time.Time),
	}, nil
}

// Allow reports whether the key has stayed under the failure threshold
// within the window.
func (l *MemoryFailureLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prune(key, time.Now())) < l.threshold
}

// RecordFailure counts one failed attempt.
func (l *MemoryFailureLimiter) RecordFailure(key string) {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[key] = append(l.prune(key, now), now)
}

// Reset drops all recorded failures for the key.
func (l *MemoryFailureLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.failures, key)
}

// prune drops entries older than the window. Caller holds the lock.
func (l *MemoryFailureLimiter) prune(key string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	kept := l.failures[key][:0]
	for _, at := range l.failures[key] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	if len(kept) == 0 {
		delete(l.failures, key)
		return nil
	}
	l.failures[key] = kept
	return kept
}
