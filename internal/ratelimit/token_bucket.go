package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket refills at RequestsPerSec up to Burst tokens; each call spends one.
type TokenBucket struct {
	mu         sync.Mutex
	rate       float64
	burst      int
	tokens     float64
	lastUpdate time.Time
	now        func() time.Time
	config     Config
}

// NewTokenBucket creates a full token bucket.
func NewTokenBucket(cfg Config) *TokenBucket {
	cfg = applyDefaults(cfg)
	return &TokenBucket{
		rate:       cfg.RequestsPerSec,
		burst:      cfg.Burst,
		tokens:     float64(cfg.Burst),
		lastUpdate: time.Now(),
		now:        time.Now,
		config:     cfg,
	}
}

// Wait blocks until a token is spent or ctx is done.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		wait := tb.take()
		if wait == 0 {
			return nil
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// take spends a token and returns 0, or returns how long until one is available.
func (tb *TokenBucket) take() time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens >= 1.0 {
		tb.tokens--
		return 0
	}
	return tb.deficit() + time.Nanosecond
}

// Allow spends a token if one is available now.
func (tb *TokenBucket) Allow() bool {
	return tb.take() == 0
}

// Reserve returns the wait for the next token without spending it.
func (tb *TokenBucket) Reserve() time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens >= 1.0 {
		return 0
	}
	return tb.deficit()
}

func (tb *TokenBucket) RetryAfter(attempt int) time.Duration {
	return CalculateBackoff(attempt, tb.config)
}

func (tb *TokenBucket) MaxRetries() int { return tb.config.MaxRetries }

// Reset refills the bucket.
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = float64(tb.burst)
	tb.lastUpdate = tb.now()
}

// deficit is the time until one whole token; call with lock held.
func (tb *TokenBucket) deficit() time.Duration {
	return time.Duration((1.0 - tb.tokens) / tb.rate * float64(time.Second))
}

// refill adds tokens for elapsed time; call with lock held.
func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastUpdate)
	if elapsed <= 0 {
		return
	}

	tb.tokens += elapsed.Seconds() * tb.rate
	if tb.tokens > float64(tb.burst) {
		tb.tokens = float64(tb.burst)
	}
	tb.lastUpdate = now
}
