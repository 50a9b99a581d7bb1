package resilience

import "time"

// Backoff computes capped exponential retry delays: 1s, 2s, 4s, ... up to a
// maximum. It is not safe for concurrent use; callers serialize access.
type Backoff struct {
	max      time.Duration
	attempts int
}

// NewBackoff creates a backoff schedule of 2^n seconds capped at max.
func NewBackoff(max time.Duration) *Backoff {
	if max <= 0 {
		max = 30 * time.Second
	}
	return &Backoff{max: max}
}

// Next returns the delay for the current attempt and advances the counter.
func (b *Backoff) Next() time.Duration {
	d := b.Delay(b.attempts)
	b.attempts++
	return d
}

// Delay returns the delay for attempt index n (0-based) without advancing.
func (b *Backoff) Delay(n int) time.Duration {
	d := time.Second
	for i := 0; i < n; i++ {
		d *= 2
		if d >= b.max {
			return b.max
		}
	}
	if d > b.max {
		return b.max
	}
	return d
}

// Reset zeroes the attempt counter. Called after a successful connection.
func (b *Backoff) Reset() { b.attempts = 0 }

// Attempts returns the number of consecutive failures recorded so far.
func (b *Backoff) Attempts() int { return b.attempts }
