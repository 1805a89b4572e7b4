package scrape

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/opportunity-intake/internal/apperr"
	"github.com/sells-group/opportunity-intake/internal/model"
)

// DefaultMinContentChars is the meaningful-content floor.
const DefaultMinContentChars = 100

// Options control a single orchestrated scrape.
type Options struct {
	// Force runs only the named strategy, bypassing the chain.
	Force model.Method
	// SkipStatic omits the static fetch, for hosts known to render
	// client-side.
	SkipStatic bool
	// WaitSelector is passed to the browsers.
	WaitSelector string
	// Settle overrides the configured browser settle delay when > 0.
	Settle time.Duration
	// MinContentChars overrides the configured floor when > 0.
	MinContentChars int
}

// OrchestratorConfig holds per-strategy time bounds.
type OrchestratorConfig struct {
	StaticTimeout   time.Duration
	BrowserTimeout  time.Duration
	Settle          time.Duration
	MinContentChars int
}

func (c OrchestratorConfig) withDefaults() OrchestratorConfig {
	if c.StaticTimeout <= 0 {
		c.StaticTimeout = 15 * time.Second
	}
	if c.BrowserTimeout <= 0 {
		c.BrowserTimeout = 30 * time.Second
	}
	if c.Settle < 0 {
		c.Settle = 0
	}
	if c.MinContentChars <= 0 {
		c.MinContentChars = DefaultMinContentChars
	}
	return c
}

// Orchestrator runs strategies in the fixed order static, browser A,
// browser B and stops at the first one that yields meaningful content.
type Orchestrator struct {
	cfg        OrchestratorConfig
	strategies []Strategy
}

// NewOrchestrator creates an Orchestrator. Strategies are reordered to the
// fixed priority order; unknown strategy names are dropped.
func NewOrchestrator(cfg OrchestratorConfig, strategies ...Strategy) *Orchestrator {
	ordered := make([]Strategy, 0, len(strategies))
	for _, m := range model.StrategyOrder {
		for _, s := range strategies {
			if s != nil && s.Name() == m {
				ordered = append(ordered, s)
				break
			}
		}
	}
	return &Orchestrator{cfg: cfg.withDefaults(), strategies: ordered}
}

// Strategies returns the configured strategy names in run order.
func (o *Orchestrator) Strategies() []model.Method {
	out := make([]model.Method, 0, len(o.strategies))
	for _, s := range o.strategies {
		out = append(out, s.Name())
	}
	return out
}

// Scrape never fails: every outcome, including total failure, is reported
// in the result with one fallback-chain entry per strategy attempted.
func (o *Orchestrator) Scrape(ctx context.Context, url string, opts Options) *model.ScrapeResult {
	res := &model.ScrapeResult{FallbackChain: []model.ScrapeAttempt{}}

	plan := o.plan(opts)
	if len(plan) == 0 {
		res.Error = "no scrape strategy available"
		if opts.Force != "" {
			res.Error = fmt.Sprintf("strategy %q is not available", opts.Force)
		}
		return res
	}

	minChars := o.cfg.MinContentChars
	if opts.MinContentChars > 0 {
		minChars = opts.MinContentChars
	}
	run := RunOptions{
		WaitSelector: opts.WaitSelector,
		Settle:       o.cfg.Settle,
		MinChars:     minChars,
	}
	if opts.Settle > 0 {
		run.Settle = opts.Settle
	}

	for _, s := range plan {
		if ctx.Err() != nil {
			zap.L().Debug("scrape: cancelled, skipping remaining strategies",
				zap.String("url", url),
				zap.String("next", string(s.Name())),
			)
			break
		}

		out, attempt := o.attempt(ctx, s, url, run)
		res.FallbackChain = append(res.FallbackChain, attempt)
		if attempt.Succeeded {
			res.Success = true
			res.Content = out.Content
			res.Title = out.Title
			res.Method = s.Name()
			zap.L().Info("scrape: content acquired",
				zap.String("url", url),
				zap.String("method", string(s.Name())),
				zap.Int("chars", len([]rune(out.Content))),
				zap.Int("attempts", len(res.FallbackChain)),
			)
			return res
		}
	}

	res.Error = summarize(ctx, res.FallbackChain)
	zap.L().Warn("scrape: all strategies failed",
		zap.String("url", url),
		zap.Any("attempted", res.Attempted()),
		zap.String("error", res.Error),
	)
	return res
}

func (o *Orchestrator) plan(opts Options) []Strategy {
	if opts.Force != "" {
		for _, s := range o.strategies {
			if s.Name() == opts.Force {
				return []Strategy{s}
			}
		}
		return nil
	}
	if !opts.SkipStatic {
		return o.strategies
	}
	return slices.DeleteFunc(slices.Clone(o.strategies), func(s Strategy) bool {
		return s.Name() == model.MethodStatic
	})
}

func (o *Orchestrator) timeoutFor(m model.Method) time.Duration {
	if m == model.MethodStatic {
		return o.cfg.StaticTimeout
	}
	return o.cfg.BrowserTimeout
}

func (o *Orchestrator) attempt(ctx context.Context, s Strategy, url string, run RunOptions) (*StrategyResult, model.ScrapeAttempt) {
	sctx, cancel := context.WithTimeout(ctx, o.timeoutFor(s.Name()))
	defer cancel()

	start := time.Now()
	out, err := s.Run(sctx, url, run)
	if err == nil {
		if out == nil {
			out = &StrategyResult{}
		}
		out.Content = Clean(out.Content)
		if n := len([]rune(out.Content)); n < run.MinChars {
			err = apperr.New(apperr.KindParsing,
				fmt.Sprintf("insufficient content: %d characters, need %d", n, run.MinChars))
		}
	}

	attempt := model.ScrapeAttempt{
		Strategy:   s.Name(),
		Succeeded:  err == nil,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		kind := apperr.KindOf(err)
		if kind == apperr.KindUnknown && sctx.Err() != nil && ctx.Err() == nil {
			kind = apperr.KindTimeout
		}
		attempt.ErrorKind = string(kind)
		attempt.ErrorReason = err.Error()
		zap.L().Debug("scrape: strategy failed, trying next",
			zap.String("strategy", string(s.Name())),
			zap.String("url", url),
			zap.String("kind", attempt.ErrorKind),
			zap.Int64("duration_ms", attempt.DurationMs),
			zap.Error(err),
		)
		return nil, attempt
	}
	return out, attempt
}

func summarize(ctx context.Context, chain []model.ScrapeAttempt) string {
	if len(chain) == 0 {
		if ctx.Err() != nil {
			return "scrape cancelled before any strategy ran"
		}
		return "no strategy attempted"
	}
	last := chain[len(chain)-1]
	return fmt.Sprintf("all %d strategies failed; last (%s): %s", len(chain), last.Strategy, last.ErrorReason)
}

// Close releases strategies that hold long-lived resources.
func (o *Orchestrator) Close() {
	for _, s := range o.strategies {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
