// Package extract turns posting text, or a bare URL, into typed opportunity
// fields through one completion call per attempt.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/opportunity-intake/internal/apperr"
	"github.com/sells-group/opportunity-intake/internal/model"
	"github.com/sells-group/opportunity-intake/internal/resilience"
	"github.com/sells-group/opportunity-intake/internal/scrape"
	"github.com/sells-group/opportunity-intake/pkg/anthropic"
)

// MinContentChars is the shortest text accepted for extraction.
const MinContentChars = 50

// Input is either page text or a URL. Content wins when both are set.
type Input struct {
	URL     string
	Content string
}

// Options bound one extraction.
type Options struct {
	// Timeout applies to each attempt. A timeout is never retried.
	Timeout time.Duration
	// MaxRetries is the total number of attempts on rate limiting.
	MaxRetries int
	// RetryDelay scales the linear backoff: RetryDelay × attempt.
	RetryDelay time.Duration
}

// Config configures a Client.
type Config struct {
	Model             string
	MaxTokens         int64
	RequestsPerSecond float64
	Defaults          Options
}

// Result carries the normalized fields and the raw completion text.
type Result struct {
	Fields   model.ExtractedFields
	Raw      string
	Attempts int
}

// Client calls the completion service with a fixed prompt.
type Client struct {
	ai      anthropic.Client
	cfg     Config
	limiter *resilience.AdaptiveLimiter

	// onRetry observes retries; tests use it to record delays.
	onRetry func(attempt int, delay time.Duration, err error)
}

// NewClient creates a Client.
func NewClient(ai anthropic.Client, cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = "claude-haiku-4-5-20251001"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	c := &Client{ai: ai, cfg: cfg}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = resilience.NewAdaptiveLimiter("anthropic", rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c
}

func (c *Client) options(o Options) Options {
	d := c.cfg.Defaults
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = d.MaxRetries
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = d.RetryDelay
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
	return o
}

// Extract runs the extraction. Failures are *apperr.Error values with kinds
// InvalidContent, RateLimited, Timeout, InvalidResponse or
// ExtractionFailed.
func (c *Client) Extract(ctx context.Context, in Input, opts Options) (*Result, error) {
	in.Content = scrape.Clean(in.Content)
	in.URL = strings.TrimSpace(in.URL)
	if in.Content == "" && in.URL == "" {
		return nil, apperr.New(apperr.KindInvalidContent, "no content or url to extract from")
	}
	if in.Content != "" && len([]rune(in.Content)) < MinContentChars {
		return nil, apperr.New(apperr.KindInvalidContent,
			fmt.Sprintf("content too short to extract from: need at least %d characters", MinContentChars))
	}
	opts = c.options(opts)

	req := anthropic.MessageRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		System:      systemPrompt,
		Messages:    []anthropic.Message{{Role: "user", Content: BuildPrompt(in)}},
		Temperature: new(float64),
	}

	attempts := 0
	retryCfg := resilience.LinearRetry(opts.MaxRetries, opts.RetryDelay, func(err error) bool {
		return apperr.KindOf(err) == apperr.KindRateLimited
	})
	logRetry := resilience.RetryLogger("anthropic", "extract")
	retryCfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		logRetry(attempt, delay, err)
		if c.onRetry != nil {
			c.onRetry(attempt, delay, err)
		}
	}

	text, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (string, error) {
		attempts++
		return c.attempt(ctx, req, opts.Timeout)
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindRateLimited {
			return nil, apperr.Wrap(err, apperr.KindRateLimited,
				fmt.Sprintf("completion service still rate limited after %d attempts; try again shortly", attempts))
		}
		return nil, err
	}

	obj, err := ParseObject(text)
	if err != nil {
		zap.L().Warn("extract: unparseable response",
			zap.String("url", in.URL),
			zap.Int("response_chars", len(text)),
			zap.Error(err),
		)
		return nil, apperr.Wrap(err, apperr.KindInvalidResponse, "completion service returned no usable JSON")
	}

	return &Result{Fields: Normalize(obj), Raw: text, Attempts: attempts}, nil
}

func (c *Client) attempt(ctx context.Context, req anthropic.MessageRequest, timeout time.Duration) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", apperr.Wrap(err, apperr.KindTimeout, "extraction cancelled while waiting for rate limiter")
	}

	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.ai.CreateMessage(actx, req)
	if err != nil {
		switch {
		case errors.Is(actx.Err(), context.DeadlineExceeded):
			return "", apperr.Wrap(err, apperr.KindTimeout,
				fmt.Sprintf("completion request exceeded %s", timeout))
		case isRateLimit(err):
			c.limiter.OnRateLimit()
			return "", apperr.Wrap(err, apperr.KindRateLimited, "completion service rate limited")
		default:
			return "", apperr.Wrap(err, apperr.KindExtractionFailed, "completion request failed")
		}
	}
	c.limiter.OnSuccess()
	resp.Usage.LogUsage(req.Model, "extract")
	return resp.Text(), nil
}

// isRateLimit prefers the structured status and falls back to matching the
// error text for wrapped or non-API errors.
func isRateLimit(err error) bool {
	if anthropic.IsRateLimit(err) {
		return true
	}
	if anthropic.StatusCode(err) != 0 {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "rate limit")
}
