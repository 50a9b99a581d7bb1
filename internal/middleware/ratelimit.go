package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// maxTrackedClients caps the visitor table so an address scan cannot grow it
// without bound. New clients are rejected while the table is full; the sweep
// frees slots as entries go idle.
const maxTrackedClients = 100_000

// RateLimiter applies a per-client token bucket to the API surface. Clients
// are keyed by remote IP and each bucket starts full, so short bursts pass
// and sustained traffic settles at the fill rate.
type RateLimiter struct {
	fillRate float64 // tokens accrued per second
	capacity float64 // bucket size and initial balance

	mu       sync.Mutex
	visitors map[string]*visitor
}

// visitor tracks one client. balance is the token count as of refreshed;
// idle records the last request for the cleanup sweep.
type visitor struct {
	balance   float64
	refreshed time.Time
	idle      time.Time
}

// NewRateLimiter creates a limiter allowing rate requests per second with the
// given burst headroom.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	return &RateLimiter{
		fillRate: rate,
		capacity: float64(burst),
		visitors: make(map[string]*visitor),
	}
}

// Handler enforces the limit and annotates every response with X-RateLimit
// headers. Rejections get 429 with a Retry-After estimate.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		left, wait, ok := rl.take(clientKey(r))

		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(left))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Second).Unix(), 10))
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait))))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// take debits one token from the client's bucket, creating the bucket full on
// first sight. It reports the whole tokens left and, on rejection, the
// seconds until the next token accrues.
func (rl *RateLimiter) take(key string) (remaining int, wait float64, ok bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	v, seen := rl.visitors[key]
	if !seen {
		if len(rl.visitors) >= maxTrackedClients {
			return 0, 1 / rl.fillRate, false
		}
		v = &visitor{balance: rl.capacity, refreshed: now}
		rl.visitors[key] = v
	} else {
		v.balance += now.Sub(v.refreshed).Seconds() * rl.fillRate
		if v.balance > rl.capacity {
			v.balance = rl.capacity
		}
		v.refreshed = now
	}
	v.idle = now

	if v.balance < 1 {
		return 0, (1 - v.balance) / rl.fillRate, false
	}
	v.balance--
	return int(v.balance), 0, true
}

// StartCleanup sweeps idle visitors on the given interval until the returned
// stop function is called.
func (rl *RateLimiter) StartCleanup(interval, maxIdle time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				rl.sweep(maxIdle)
			}
		}
	}()
	return cancel
}

// sweep drops visitors whose last request is older than maxIdle.
func (rl *RateLimiter) sweep(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	deadline := time.Now().Add(-maxIdle)
	for key, v := range rl.visitors {
		if v.idle.Before(deadline) {
			delete(rl.visitors, key)
		}
	}
}

// Len reports how many clients currently hold a bucket.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

// clientKey derives the bucket key from the connection's remote address.
// Forwarding headers are ignored; a spoofed header must not move a caller
// into a fresh bucket.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
