// Package gateway decides, per URL, whether to scrape automatically or to
// rely on content the user pasted.
package gateway

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/opportunity-intake/internal/model"
	"github.com/sells-group/opportunity-intake/internal/scrape"
	"github.com/sells-group/opportunity-intake/internal/sitepolicy"
)

// MinManualChars is the floor for pasted content, after cleaning.
const MinManualChars = 50

// Method reports how content was acquired.
type Method string

const (
	MethodAuto   Method = "auto"
	MethodManual Method = "manual"
)

// Scraper runs the fallback chain. *scrape.Orchestrator satisfies it.
type Scraper interface {
	Scrape(ctx context.Context, url string, opts scrape.Options) *model.ScrapeResult
}

// Classifier decides site policy. *sitepolicy.Classifier satisfies it.
type Classifier interface {
	Classify(url string) sitepolicy.Policy
	Guidance(url string) string
}

// Request is one smart-scrape call.
type Request struct {
	URL           string
	ManualContent string
	// Timeout bounds the automated run. Zero uses the gateway default.
	Timeout time.Duration
	// Force runs a single named strategy.
	Force model.Method
}

// Result is the outcome of a smart scrape.
type Result struct {
	Success        bool                  `json:"success"`
	Content        string                `json:"content,omitempty"`
	Title          string                `json:"title,omitempty"`
	Method         Method                `json:"method,omitempty"`
	Strategy       model.Method          `json:"strategy,omitempty"`
	RequiresManual bool                  `json:"requires_manual"`
	Restricted     bool                  `json:"restricted"`
	Guidance       string                `json:"guidance,omitempty"`
	Error          string                `json:"error,omitempty"`
	FallbackChain  []model.ScrapeAttempt `json:"fallback_chain,omitempty"`
}

// Config holds gateway defaults.
type Config struct {
	Timeout time.Duration
	// ScriptHeavySettle is the browser settle delay for script-heavy hosts.
	ScriptHeavySettle time.Duration
}

// Gateway wraps the orchestrator with the site policy.
type Gateway struct {
	scraper    Scraper
	classifier Classifier
	cfg        Config
}

// New creates a Gateway.
func New(scraper Scraper, classifier Classifier, cfg Config) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	return &Gateway{scraper: scraper, classifier: classifier, cfg: cfg}
}

// SmartScrape applies the decision table: restricted hosts never reach the
// orchestrator and succeed only on pasted content; other hosts always try
// automation first and fall back to pasted content.
func (g *Gateway) SmartScrape(ctx context.Context, req Request) *Result {
	policy := g.classifier.Classify(req.URL)
	manual := scrape.Clean(req.ManualContent)
	hasManual := len([]rune(manual)) >= MinManualChars

	if policy.Restricted {
		guidance := g.classifier.Guidance(req.URL)
		zap.L().Info("gateway: restricted host, skipping automation",
			zap.String("url", req.URL),
			zap.Bool("manual_content", hasManual),
		)
		if hasManual {
			return manualResult(manual, &Result{Restricted: true})
		}
		return &Result{
			RequiresManual: true,
			Restricted:     true,
			Guidance:       guidance,
			Error:          "this site blocks automated access; paste the posting text to continue",
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = g.cfg.Timeout
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := scrape.Options{Force: req.Force}
	if policy.ScriptHeavy {
		opts.SkipStatic = true
		opts.Settle = g.cfg.ScriptHeavySettle
	}
	sr := g.scraper.Scrape(sctx, req.URL, opts)

	if sr.Success {
		return &Result{
			Success:       true,
			Content:       sr.Content,
			Title:         sr.Title,
			Method:        MethodAuto,
			Strategy:      sr.Method,
			FallbackChain: sr.FallbackChain,
		}
	}

	if hasManual {
		zap.L().Info("gateway: automation failed, using pasted content",
			zap.String("url", req.URL),
			zap.String("scrape_error", sr.Error),
		)
		return manualResult(manual, &Result{FallbackChain: sr.FallbackChain})
	}

	return &Result{
		RequiresManual: true,
		Error:          "could not read the page automatically (" + sr.Error + "); paste the posting text to continue",
		FallbackChain:  sr.FallbackChain,
	}
}

func manualResult(content string, r *Result) *Result {
	r.Success = true
	r.Content = content
	r.Method = MethodManual
	r.Strategy = model.MethodManual
	return r
}
