package internal

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window counter keyed by caller (the upload
// endpoint keys by client IP). Not the room's concern: room intents are
// already serialized by the event loop, this only guards the HTTP side.
type RateLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	limit  int
	window time.Duration
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
	}
}

// Allow records a hit for key and reports whether it is within the limit.
func (r *RateLimiter) Allow(key string) bool {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	windowStart := now.Add(-r.window)
	slice := r.hits[key]
	idx := 0
	for _, ts := range slice {
		if ts.After(windowStart) {
			slice[idx] = ts
			idx++
		}
	}
	slice = slice[:idx]
	if idx == 0 && len(r.hits[key]) > 0 {
		// Key went idle; drop it so the map doesn't grow with one entry
		// per IP ever seen.
		delete(r.hits, key)
	}
	if len(slice) >= r.limit {
		r.hits[key] = slice
		return false
	}
	slice = append(slice, now)
	r.hits[key] = slice
	return true
}
