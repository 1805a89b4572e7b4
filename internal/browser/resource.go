// Package browser manages long-lived headless browser handles shared across
// scrape requests.
package browser

import (
	"context"
	"errors"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/opportunity-intake/internal/resilience"
)

// ErrClosed is returned by Acquire after Close.
var ErrClosed = eris.New("browser: resource closed")

// OpenFunc launches the underlying handle.
type OpenFunc[T any] func(ctx context.Context) (T, error)

// CloseFunc tears the handle down.
type CloseFunc[T any] func(T) error

// Resource is a lazily opened handle guarded by a mutex. Concurrent Acquire
// calls wait for a single open; a failed open is not cached. T is compared
// by Invalidate, so it is normally a pointer.
type Resource[T comparable] struct {
	name    string
	open    OpenFunc[T]
	close   CloseFunc[T]
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig

	mu     sync.Mutex
	handle T
	opened bool
	closed bool
}

// NewResource creates a Resource. breaker may be nil.
func NewResource[T comparable](name string, open OpenFunc[T], closeFn CloseFunc[T], breaker *resilience.CircuitBreaker) *Resource[T] {
	return &Resource[T]{
		name:    name,
		open:    open,
		close:   closeFn,
		breaker: breaker,
		retry:   resilience.RetryConfig{MaxAttempts: 1},
	}
}

// WithLaunchRetry retries failed opens according to cfg. An open breaker is
// never retried. With a nil cfg.ShouldRetry every other failure is retried.
func (r *Resource[T]) WithLaunchRetry(cfg resilience.RetryConfig) *Resource[T] {
	shouldRetry := cfg.ShouldRetry
	cfg.ShouldRetry = func(err error) bool {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return false
		}
		return shouldRetry == nil || shouldRetry(err)
	}
	r.retry = cfg
	return r
}

// Acquire returns the shared handle, opening it on first use.
func (r *Resource[T]) Acquire(ctx context.Context) (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if r.closed {
		return zero, ErrClosed
	}
	if r.opened {
		return r.handle, nil
	}

	var h T
	err := resilience.Do(ctx, r.retry, func(ctx context.Context) error {
		var oerr error
		h, oerr = resilience.ExecuteVal(ctx, r.breaker, func(ctx context.Context) (T, error) {
			return r.open(ctx)
		})
		return oerr
	})
	if err != nil {
		return zero, eris.Wrapf(err, "browser: open %s", r.name)
	}

	r.handle = h
	r.opened = true
	zap.L().Info("browser: launched", zap.String("engine", r.name))
	return h, nil
}

// Opened reports whether the handle is currently open.
func (r *Resource[T]) Opened() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opened
}

// Invalidate discards h if it is still the current handle, so the next
// Acquire opens a fresh one. Use it when a run finds the handle dead.
// A stale h, already replaced by a newer open, is ignored.
func (r *Resource[T]) Invalidate(h T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || !r.opened || r.handle != h {
		return
	}
	r.teardown()
	zap.L().Warn("browser: handle invalidated, will relaunch", zap.String("engine", r.name))
}

// Close tears down the handle if open. It is idempotent and never fails;
// teardown errors are logged.
func (r *Resource[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	if !r.opened {
		return
	}
	r.teardown()
	zap.L().Info("browser: closed", zap.String("engine", r.name))
}

// teardown closes the current handle. Callers hold mu.
func (r *Resource[T]) teardown() {
	if r.close != nil {
		if err := r.close(r.handle); err != nil {
			zap.L().Warn("browser: close failed",
				zap.String("engine", r.name),
				zap.Error(err),
			)
		}
	}
	var zero T
	r.handle = zero
	r.opened = false
}
