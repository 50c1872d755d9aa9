package ratelimit

import (
	"context"
	"sync"
	"time"
)

// FixedWindow allows RequestsPerSec*Window calls per window, matching APIs that
// publish limits as "N requests per 10 seconds".
type FixedWindow struct {
	mu          sync.Mutex
	limit       int
	window      time.Duration
	count       int
	windowStart time.Time
	now         func() time.Time
	config      Config
}

// NewFixedWindow creates a new fixed window limiter.
func NewFixedWindow(cfg Config) *FixedWindow {
	cfg = applyDefaults(cfg)

	limit := int(cfg.RequestsPerSec * cfg.Window.Seconds())
	if limit < 1 {
		limit = 1
	}

	return &FixedWindow{
		limit:       limit,
		window:      cfg.Window,
		windowStart: time.Now(),
		now:         time.Now,
		config:      cfg,
	}
}

// Wait blocks until the current or a later window has room, or ctx is done.
func (fw *FixedWindow) Wait(ctx context.Context) error {
	for {
		if fw.Allow() {
			return nil
		}
		if err := sleep(ctx, fw.Reserve()); err != nil {
			return err
		}
	}
}

func (fw *FixedWindow) Allow() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	fw.roll()
	if fw.count < fw.limit {
		fw.count++
		return true
	}
	return false
}

// Reserve returns the wait until the window resets, or 0 if there is room.
func (fw *FixedWindow) Reserve() time.Duration {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	fw.roll()
	if fw.count < fw.limit {
		return 0
	}
	return fw.window - fw.now().Sub(fw.windowStart)
}

func (fw *FixedWindow) RetryAfter(attempt int) time.Duration {
	return CalculateBackoff(attempt, fw.config)
}

func (fw *FixedWindow) MaxRetries() int { return fw.config.MaxRetries }

func (fw *FixedWindow) Reset() {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	fw.count = 0
	fw.windowStart = fw.now()
}

// roll starts a new window once the current one elapsed; call with lock held.
func (fw *FixedWindow) roll() {
	now := fw.now()
	if now.Sub(fw.windowStart) >= fw.window {
		fw.count = 0
		fw.windowStart = now
	}
}
