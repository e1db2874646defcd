// Package ratelimit paces requests so that each upstream sees at most one call per interval.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/mention-radar/internal/metrics"
	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per upstream key.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	interval map[string]time.Duration
	fallback time.Duration
}

// Config holds pacing configuration.
type Config struct {
	// DefaultInterval applies to upstreams without an explicit entry. Zero disables pacing.
	DefaultInterval time.Duration
	Intervals       map[string]time.Duration
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	intervals := make(map[string]time.Duration, len(cfg.Intervals))
	for k, v := range cfg.Intervals {
		intervals[k] = v
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		interval: intervals,
		fallback: cfg.DefaultInterval,
	}
}

// Wait blocks until upstream may be called again, respecting the context.
// The first call for an upstream never waits.
func (l *Limiter) Wait(ctx context.Context, upstream string) error {
	limiter := l.limiterFor(upstream)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pacing wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObservePacingDelay(upstream, waited)
	}
	return nil
}

func (l *Limiter) limiterFor(upstream string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[upstream]
	if ok {
		return limiter
	}
	interval, ok := l.interval[upstream]
	if !ok {
		interval = l.fallback
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	limiter = rate.NewLimiter(limit, 1)
	l.limiters[upstream] = limiter
	return limiter
}
