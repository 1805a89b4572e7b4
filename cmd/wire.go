package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/opportunity-intake/internal/config"
	"github.com/sells-group/opportunity-intake/internal/extract"
	"github.com/sells-group/opportunity-intake/internal/gateway"
	"github.com/sells-group/opportunity-intake/internal/resilience"
	"github.com/sells-group/opportunity-intake/internal/scrape"
	"github.com/sells-group/opportunity-intake/internal/sitepolicy"
	"github.com/sells-group/opportunity-intake/internal/store"
	"github.com/sells-group/opportunity-intake/internal/submission"
	anthropicpkg "github.com/sells-group/opportunity-intake/pkg/anthropic"
)

// intakeEnv holds everything the serve and submit commands need.
type intakeEnv struct {
	Store        store.Store
	Orchestrator *scrape.Orchestrator
	Gateway      *gateway.Gateway
	Coordinator  *submission.Coordinator
}

// Close shuts the browsers down and releases the store. Safe on a partially
// built env.
func (e *intakeEnv) Close() {
	if e.Orchestrator != nil {
		e.Orchestrator.Close()
	}
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initOrchestrator builds the fallback chain. Each browser gets its own
// launch breaker so a broken Chrome install does not disable Playwright.
func initOrchestrator() *scrape.Orchestrator {
	breakerCfg := resilience.FromCircuitConfig(cfg.BrowserBreaker.FailureThreshold, cfg.BrowserBreaker.ResetTimeoutSecs)
	breakerCfg.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("browser launch breaker changed state",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	strategies := []scrape.Strategy{
		scrape.NewStaticFetcher(scrape.StaticOptions{UserAgent: cfg.Scrape.UserAgent}),
	}
	if cfg.Rod.Enabled {
		strategies = append(strategies, scrape.NewRodBrowser(scrape.RodOptions{
			Bin:            cfg.Rod.Bin,
			Headless:       cfg.Rod.Headless,
			Stealth:        cfg.Rod.Stealth,
			UserAgent:      cfg.Scrape.UserAgent,
			BlockResources: cfg.Scrape.BlockResources,
		}, resilience.NewCircuitBreaker(breakerCfg)))
	}
	if cfg.Playwright.Enabled {
		strategies = append(strategies, scrape.NewPlaywrightBrowser(scrape.PlaywrightOptions{
			Headless:       cfg.Playwright.Headless,
			Install:        cfg.Playwright.Install,
			UserAgent:      cfg.Scrape.UserAgent,
			BlockResources: cfg.Scrape.BlockResources,
		}, resilience.NewCircuitBreaker(breakerCfg)))
	}

	return scrape.NewOrchestrator(scrape.OrchestratorConfig{
		StaticTimeout:   config.Seconds(cfg.Scrape.StaticTimeoutSecs),
		BrowserTimeout:  config.Seconds(cfg.Scrape.BrowserTimeoutSecs),
		Settle:          config.Millis(cfg.Scrape.SettleMs),
		MinContentChars: cfg.Scrape.MinContentChars,
	}, strategies...)
}

func initGateway(orch *scrape.Orchestrator) (*gateway.Gateway, error) {
	var rules *sitepolicy.Rules
	if cfg.SitePolicy.RulesFile != "" {
		r, err := sitepolicy.LoadRules(cfg.SitePolicy.RulesFile)
		if err != nil {
			return nil, err
		}
		rules = r
		zap.L().Info("site policy rules loaded",
			zap.String("file", cfg.SitePolicy.RulesFile),
			zap.Int("restricted", len(r.Restricted)),
			zap.Int("script_heavy", len(r.ScriptHeavy)),
		)
	}
	classifier := rules.Classifier(cfg.SitePolicy.ExtraRestricted, cfg.SitePolicy.ExtraScriptHeavy)
	return gateway.New(orch, classifier, gateway.Config{
		Timeout:           config.Seconds(cfg.Scrape.TotalTimeoutSecs),
		ScriptHeavySettle: config.Millis(cfg.Scrape.ScriptHeavySettleMs),
	}), nil
}

func extractOptions() extract.Options {
	return extract.Options{
		Timeout:    config.Seconds(cfg.Extract.TimeoutSecs),
		MaxRetries: cfg.Extract.MaxRetries,
		RetryDelay: config.Millis(cfg.Extract.RetryDelayMs),
	}
}

// initIntake validates config for mode, opens and migrates the store, and
// wires the submission pipeline. Callers should defer env.Close().
func initIntake(ctx context.Context, mode string) (*intakeEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &intakeEnv{Store: st}

	if err := st.Migrate(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	ai := anthropicpkg.NewClient(cfg.Anthropic.Key)
	extractor := extract.NewClient(ai, extract.Config{
		Model:             cfg.Anthropic.Model,
		MaxTokens:         cfg.Anthropic.MaxTokens,
		RequestsPerSecond: cfg.Extract.RequestsPerSecond,
		Defaults:          extractOptions(),
	})

	env.Orchestrator = initOrchestrator()
	gw, err := initGateway(env.Orchestrator)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Gateway = gw
	env.Coordinator = submission.NewCoordinator(env.Gateway, extractor, st, submission.Config{
		Timeout:       config.Seconds(cfg.Submission.TimeoutSecs),
		ScrapeTimeout: config.Seconds(cfg.Scrape.TotalTimeoutSecs),
		Extract:       extractOptions(),
	})

	zap.L().Info("intake initialized",
		zap.String("store", cfg.Store.Driver),
		zap.Strings("strategies", methodNames(env.Orchestrator)),
		zap.String("model", cfg.Anthropic.Model),
	)
	return env, nil
}

func methodNames(o *scrape.Orchestrator) []string {
	out := make([]string, 0, 3)
	for _, m := range o.Strategies() {
		out = append(out, string(m))
	}
	return out
}
