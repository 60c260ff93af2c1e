package cron

import "time"

// Retry backoff defaults: 30s doubling per attempt, capped at one hour.
const (
	DefaultBackoffBase = 30 * time.Second
	DefaultBackoffMax  = time.Hour
)

// Backoff computes the delay before retry number attempt (1-based).
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff returns the 30s/1h policy.
func DefaultBackoff() Backoff {
	return Backoff{Base: DefaultBackoffBase, Max: DefaultBackoffMax}
}

// Delay returns Base * 2^(attempt-1), capped at Max. Overflow saturates at
// Max.
func (b Backoff) Delay(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = DefaultBackoffBase
	}
	limit := b.Max
	if limit <= 0 {
		limit = DefaultBackoffMax
	}
	if attempt <= 1 {
		return min(base, limit)
	}

	shift := attempt - 1
	if shift >= 62 || base > limit>>shift {
		return limit
	}
	return min(base<<shift, limit)
}
