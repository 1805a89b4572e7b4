// Package scrape acquires readable page text through an ordered chain of
// strategies: a static HTTP fetch and two headless browser engines.
package scrape

import (
	"context"
	"time"

	"github.com/sells-group/opportunity-intake/internal/model"
	"github.com/sells-group/opportunity-intake/internal/resilience"
)

// RunOptions are passed to each strategy invocation.
type RunOptions struct {
	// WaitSelector, when set, replaces the fixed settle delay in browsers.
	WaitSelector string
	// Settle is how long browsers wait after load for client rendering.
	Settle time.Duration
	// MinChars is the meaningful-content floor used by DOM extraction to
	// pick a content region.
	MinChars int
}

// StrategyResult is the raw output of a successful strategy run.
type StrategyResult struct {
	Content string
	Title   string
}

// Strategy acquires text from a URL. Errors are *apperr.Error values with
// kinds Timeout, AccessDenied, RateLimited, NetworkError or ParsingError.
type Strategy interface {
	Name() model.Method
	Run(ctx context.Context, url string, opts RunOptions) (*StrategyResult, error)
}

// launchRetry gives a failed browser launch one more try after a jittered
// backoff. Launch failures still count against the browser's breaker.
func launchRetry(engine string) resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = 2
	cfg.MaxBackoff = 5 * time.Second
	cfg.OnRetry = resilience.RetryLogger(engine, "launch")
	return cfg
}
