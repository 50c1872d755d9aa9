package ratelimit

import (
	"context"
	"sync"
	"time"
)

// FixedDelayLimiter spaces calls at least FixedDelay apart.
type FixedDelayLimiter struct {
	mu   sync.Mutex
	next time.Time
	now  func() time.Time

	delay  time.Duration
	config Config
}

// NewFixedDelayLimiter creates a new fixed delay limiter.
func NewFixedDelayLimiter(cfg Config) *FixedDelayLimiter {
	cfg = applyDefaults(cfg)
	return &FixedDelayLimiter{delay: cfg.FixedDelay, now: time.Now, config: cfg}
}

// Wait claims the next slot and sleeps until it starts.
func (l *FixedDelayLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	now := l.now()
	start := now
	if l.next.After(now) {
		start = l.next
	}
	l.next = start.Add(l.delay)
	l.mu.Unlock()

	return sleep(ctx, start.Sub(now))
}

// Allow claims the current slot if it is free.
func (l *FixedDelayLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.next.After(now) {
		return false
	}
	l.next = now.Add(l.delay)
	return true
}

// Reserve returns the wait until the next free slot.
func (l *FixedDelayLimiter) Reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if wait := l.next.Sub(l.now()); wait > 0 {
		return wait
	}
	return 0
}

func (l *FixedDelayLimiter) RetryAfter(attempt int) time.Duration {
	return CalculateBackoff(attempt, l.config)
}

func (l *FixedDelayLimiter) MaxRetries() int { return l.config.MaxRetries }

func (l *FixedDelayLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next = time.Time{}
}
