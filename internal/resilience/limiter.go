package resilience

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AdaptiveLimiter wraps a rate.Limiter that speeds up on success and backs
// off when the upstream reports rate limiting. The rate stays within
// [initial/4, initial*2].
type AdaptiveLimiter struct {
	name    string
	mu      sync.Mutex
	limiter *rate.Limiter
	maxRate rate.Limit
	minRate rate.Limit
	current rate.Limit
}

// NewAdaptiveLimiter creates an adaptive limiter starting at initial events
// per second.
func NewAdaptiveLimiter(name string, initial rate.Limit, burst int) *AdaptiveLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &AdaptiveLimiter{
		name:    name,
		limiter: rate.NewLimiter(initial, burst),
		maxRate: initial * 2,
		minRate: initial / 4,
		current: initial,
	}
}

// Wait blocks until the limiter allows an event or ctx is done. A nil
// limiter never blocks.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	if a == nil {
		return nil
	}
	return a.limiter.Wait(ctx)
}

// OnSuccess raises the rate by 20%.
func (a *AdaptiveLimiter) OnSuccess() {
	if a == nil {
		return
	}
	a.set(a.Limit() * 1.2)
}

// OnRateLimit halves the rate.
func (a *AdaptiveLimiter) OnRateLimit() {
	if a == nil {
		return
	}
	r := a.set(a.Limit() * 0.5)
	zap.L().Warn("resilience: reducing rate after rate limit",
		zap.String("limiter", a.name),
		zap.Float64("new_rate", float64(r)),
	)
}

// Limit returns the current rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *AdaptiveLimiter) set(r rate.Limit) rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	if r > a.maxRate {
		r = a.maxRate
	}
	if r < a.minRate {
		r = a.minRate
	}
	a.current = r
	a.limiter.SetLimit(r)
	return r
}
