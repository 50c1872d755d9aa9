package ratelimit

import (
	"math"
	"math/rand"
	"time"
)

// CalculateBackoff computes exponential backoff with +/-25% jitter for a
// 1-based retry attempt, capped at MaxBackoff.
func CalculateBackoff(attempt int, cfg Config) time.Duration {
	if attempt <= 0 {
		return 0
	}
	if attempt > cfg.MaxRetries {
		return cfg.MaxBackoff
	}

	base := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffMultiplier, float64(attempt-1))
	if base > float64(cfg.MaxBackoff) {
		base = float64(cfg.MaxBackoff)
	}

	jitter := base * 0.25 * (2*rand.Float64() - 1)
	backoff := math.Min(math.Max(base+jitter, 0), float64(cfg.MaxBackoff))

	return time.Duration(backoff)
}

// ShouldRetry reports whether another attempt is allowed after attempt retries.
func ShouldRetry(attempt int, maxRetries int) bool {
	return attempt < maxRetries
}
