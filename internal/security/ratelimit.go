package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a key exceeds its limit.
var ErrRateLimited = errors.New("security: rate limit exceeded")

// RateLimiter is a sliding-window limiter: at most Limit events per key in
// any Window.
type RateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu     sync.Mutex
	events map[string][]time.Time
}

// NewRateLimiter allows limit events per window and key. A limit <= 0
// disables limiting.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		events: make(map[string][]time.Time),
	}
}

// Allow records an event for key, or returns ErrRateLimited.
func (rl *RateLimiter) Allow(key string) error {
	if rl == nil || rl.limit <= 0 {
		return nil
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	events := evict(rl.events[key], now.Add(-rl.window))
	if len(events) >= rl.limit {
		rl.events[key] = events
		return ErrRateLimited
	}
	rl.events[key] = append(events, now)

	// Keep the map bounded by dropping keys that went quiet.
	if len(rl.events) > 1024 {
		for k, ev := range rl.events {
			if len(evict(ev, now.Add(-rl.window))) == 0 {
				delete(rl.events, k)
			}
		}
	}
	return nil
}

// evict drops events at or before cutoff. Events are chronological.
func evict(events []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(events) && !events[i].After(cutoff) {
		i++
	}
	return events[i:]
}
