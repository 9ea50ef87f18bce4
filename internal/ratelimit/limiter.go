// Package ratelimit implements a per-key windowed request limiter and the
// HTTP middleware that applies it.
package ratelimit

import (
	"sync"
	"time"

	"mcpd/internal/clock"
)

// Decision captures the result of a rate limit check.
type Decision struct {
	Allowed   bool
	Remaining int           // requests left in the window after this one
	Limit     int           // max requests per window
	RetryIn   time.Duration // until the oldest entry leaves the window (denied only)
}

// Limiter counts requests per key over a trailing window.
//
// Each key holds its request timestamps in arrival order. Entries older than
// the window are dropped from the front lazily on every check; a key's bucket
// is never deleted.
type Limiter struct {
	clock  clock.Clock
	window time.Duration
	max    int

	mu      sync.Mutex
	buckets map[string][]time.Time
}

// New creates a Limiter allowing max requests per window. max <= 0 disables it.
func New(window time.Duration, max int, c clock.Clock) *Limiter {
	if c == nil {
		c = clock.NewReal()
	}
	return &Limiter{
		clock:   c,
		window:  window,
		max:     max,
		buckets: make(map[string][]time.Time),
	}
}

// Enabled reports whether the limiter enforces anything.
func (l *Limiter) Enabled() bool { return l != nil && l.max > 0 }

// Allow records a request for key if the window has room.
func (l *Limiter) Allow(key string) Decision {
	if !l.Enabled() {
		return Decision{Allowed: true, Remaining: -1}
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	cutoff := now.Add(-l.window)

	bucket := l.buckets[key]
	i := 0
	for i < len(bucket) && bucket[i].Before(cutoff) {
		i++
	}
	bucket = bucket[i:]

	if len(bucket) >= l.max {
		l.buckets[key] = bucket
		retry := bucket[0].Sub(cutoff)
		if retry <= 0 {
			retry = time.Millisecond
		}
		return Decision{Allowed: false, Remaining: 0, Limit: l.max, RetryIn: retry}
	}
	bucket = append(bucket, now)
	l.buckets[key] = bucket
	return Decision{Allowed: true, Remaining: l.max - len(bucket), Limit: l.max}
}

// Keys returns the number of tracked keys.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Stats is the limiter's configuration plus the number of tracked keys.
type Stats struct {
	WindowMs int64 `json:"windowMs"`
	Max      int   `json:"max"`
	Keys     int   `json:"keys"`
}

func (l *Limiter) Stats() Stats {
	return Stats{WindowMs: l.window.Milliseconds(), Max: l.max, Keys: l.Keys()}
}
