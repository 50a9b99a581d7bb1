// Package resilience provides retry backoff and circuit breaking for calls
// that leave the process.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Execute while the breaker is cooling down.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type phase int

const (
	phaseClosed phase = iota
	phaseTripped
	phaseProbing
)

// Breaker trips after a run of consecutive failures and rejects calls for a
// cooldown period. The first call after the cooldown goes through as a probe;
// its outcome decides whether the breaker closes again or re-trips.
type Breaker struct {
	limit    int
	cooldown time.Duration
	now      func() time.Time

	mu        sync.Mutex
	phase     phase
	strikes   int
	trippedAt time.Time
}

// NewBreaker creates a breaker that trips after limit consecutive failures
// and cools down for the given duration.
func NewBreaker(limit int, cooldown time.Duration) *Breaker {
	return &Breaker{limit: limit, cooldown: cooldown, now: time.Now}
}

// Execute runs fn unless the breaker is rejecting calls, in which case it
// returns ErrCircuitOpen without invoking fn. fn's own error passes through
// unchanged.
func (b *Breaker) Execute(fn func() error) error {
	if !b.admit() {
		return ErrCircuitOpen
	}
	err := fn()
	b.settle(err)
	return err
}

// admit decides whether a call may proceed, entering the probe phase once
// the cooldown has elapsed.
func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.phase == phaseTripped {
		if b.now().Sub(b.trippedAt) < b.cooldown {
			return false
		}
		b.phase = phaseProbing
	}
	return true
}

// settle folds one call outcome into the breaker state. A failed probe
// re-trips immediately; anywhere else it takes limit consecutive failures.
func (b *Breaker) settle(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.phase = phaseClosed
		b.strikes = 0
		return
	}
	b.strikes++
	if b.phase == phaseProbing || b.strikes >= b.limit {
		b.phase = phaseTripped
		b.trippedAt = b.now()
	}
}
