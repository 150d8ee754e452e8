// Package ratelimit implements a lock-guarded token bucket with lazy refill.
package ratelimit

import (
	"sync"
	"time"
)

// Bucket is a token bucket. Tokens accrue lazily on each Allow call based on
// elapsed time; there is no background timer. A zero or negative capacity
// disables rate limiting entirely.
type Bucket struct {
	mu           sync.Mutex
	capacity     float64
	tokens       float64
	refillAmount float64
	refillEvery  time.Duration
	lastRefill   time.Time
}

// New creates a bucket that starts full. refillAmount tokens are added per
// refillEvery interval, pro-rated continuously.
func New(capacity, refillAmount int, refillEvery time.Duration) *Bucket {
	return &Bucket{
		capacity:     float64(capacity),
		tokens:       float64(capacity),
		refillAmount: float64(refillAmount),
		refillEvery:  refillEvery,
	}
}

// Allow consumes one token if available. now drives the lazy refill so callers
// pass time.Now() in production and a fixed clock in tests.
func (b *Bucket) Allow(now time.Time) bool {
	if b == nil || b.capacity <= 0 {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(now)

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// refill advances tokens by elapsed/refillEvery * refillAmount, capped at
// capacity. Caller holds the lock.
func (b *Bucket) refill(now time.Time) {
	if b.lastRefill.IsZero() {
		b.lastRefill = now
		return
	}

	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 || b.refillEvery <= 0 || b.refillAmount <= 0 {
		return
	}

	b.tokens += elapsed.Seconds() / b.refillEvery.Seconds() * b.refillAmount
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}
