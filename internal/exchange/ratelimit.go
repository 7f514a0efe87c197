// ratelimit.go implements token-bucket rate limiting for the venue's REST
// surface: capacity 1200 tokens, refilled continuously at 1200/60s; each
// Wait call takes exactly one token. Refill is
// time-interpolated rather than bucketed into fixed windows, avoiding the
// thundering-herd pattern a naive "reset every N seconds" counter would
// produce.
package exchange

import (
	"context"
	"sync"
	"time"
)

// TokenBucket implements a token-bucket rate limiter with continuous
// refill. Callers block in Wait() until a token is available or the
// context is cancelled.
type TokenBucket struct {
	mu       sync.Mutex
	tokens   float64   // current available tokens (fractional allowed)
	capacity float64   // maximum burst size
	rate     float64   // tokens refilled per second
	lastTime time.Time // last time tokens were calculated
}

// NewTokenBucket creates a rate limiter with the given capacity and refill
// rate.
func NewTokenBucket(capacity, ratePerSecond float64) *TokenBucket {
	return &TokenBucket{
		tokens:   capacity,
		capacity: capacity,
		rate:     ratePerSecond,
		lastTime: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(tb.lastTime).Seconds()
		tb.tokens += elapsed * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastTime = now

		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}

		// Calculate wait time for next token
		wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
			// retry
		}
	}
}

// NewExchangeRateLimiter creates the process-global limiter tuned to the
// venue's single shared budget: 1200-token capacity refilling at 1200/60s.
// Unlike a per-category limiter, the venue here exposes one shared request
// budget across orders, cancels, and reads.
func NewExchangeRateLimiter() *TokenBucket {
	return NewTokenBucket(1200, 1200.0/60.0)
}
