package internal

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window limiter keyed by client address. It guards
// websocket upgrades against reconnect storms.
type RateLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow records a hit for key unless the window is already full. A limiter
// with a non-positive limit allows everything.
func (r *RateLimiter) Allow(key string) bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	recent := pruneBefore(r.hits[key], now.Add(-r.window))
	if len(recent) >= r.limit {
		r.hits[key] = recent
		return false
	}
	r.hits[key] = append(recent, now)
	return true
}

// Sweep forgets keys with no hits inside the window.
func (r *RateLimiter) Sweep() {
	cutoff := r.now().Add(-r.window)
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, hits := range r.hits {
		if recent := pruneBefore(hits, cutoff); len(recent) == 0 {
			delete(r.hits, key)
		} else {
			r.hits[key] = recent
		}
	}
}

func pruneBefore(hits []time.Time, cutoff time.Time) []time.Time {
	kept := hits[:0]
	for _, ts := range hits {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}
