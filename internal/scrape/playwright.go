package scrape

import (
	"context"
	"errors"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/opportunity-intake/internal/apperr"
	"github.com/sells-group/opportunity-intake/internal/browser"
	"github.com/sells-group/opportunity-intake/internal/model"
	"github.com/sells-group/opportunity-intake/internal/resilience"
)

// PlaywrightOptions configures browser B.
type PlaywrightOptions struct {
	Headless bool
	// Install downloads the driver and Chromium before the first launch.
	Install        bool
	UserAgent      string
	BlockResources bool
}

type pwHandle struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
}

// PlaywrightBrowser is the resilient final-fallback strategy. The driver,
// browser and browser context are shared; every run gets its own page.
type PlaywrightBrowser struct {
	opts PlaywrightOptions
	res  *browser.Resource[*pwHandle]
}

// NewPlaywrightBrowser creates browser B. Nothing is started until the
// first run.
func NewPlaywrightBrowser(opts PlaywrightOptions, breaker *resilience.CircuitBreaker) *PlaywrightBrowser {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	res := browser.NewResource("playwright", launchPlaywright(opts), closePlaywright, breaker)
	return &PlaywrightBrowser{opts: opts, res: res.WithLaunchRetry(launchRetry("playwright"))}
}

func (p *PlaywrightBrowser) Name() model.Method { return model.MethodBrowserB }

// Close tears down the context, then the browser, then the driver.
func (p *PlaywrightBrowser) Close() { p.res.Close() }

func launchPlaywright(opts PlaywrightOptions) browser.OpenFunc[*pwHandle] {
	return func(_ context.Context) (*pwHandle, error) {
		runOpts := &playwright.RunOptions{Browsers: []string{"chromium"}, Verbose: false}
		if opts.Install {
			if err := playwright.Install(runOpts); err != nil {
				return nil, eris.Wrap(err, "playwright: install")
			}
		}
		pw, err := playwright.Run(runOpts)
		if err != nil {
			return nil, eris.Wrap(err, "playwright: run driver")
		}
		b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(opts.Headless),
			Args: []string{
				"--no-sandbox",
				"--disable-dev-shm-usage",
				"--disable-blink-features=AutomationControlled",
			},
		})
		if err != nil {
			_ = pw.Stop()
			return nil, eris.Wrap(err, "playwright: launch")
		}
		bctx, err := b.NewContext(playwright.BrowserNewContextOptions{
			UserAgent: playwright.String(opts.UserAgent),
			ExtraHttpHeaders: map[string]string{
				"Accept-Language": "en-US,en;q=0.9",
			},
		})
		if err != nil {
			_ = b.Close()
			_ = pw.Stop()
			return nil, eris.Wrap(err, "playwright: new context")
		}
		return &pwHandle{pw: pw, browser: b, context: bctx}, nil
	}
}

func closePlaywright(h *pwHandle) error {
	return errors.Join(
		h.context.Close(),
		h.browser.Close(),
		h.pw.Stop(),
	)
}

// Run opens a page, renders url, and extracts its content. Cancelling ctx
// closes the page, which aborts any call in flight.
func (p *PlaywrightBrowser) Run(ctx context.Context, url string, opts RunOptions) (*StrategyResult, error) {
	h, err := p.res.Acquire(ctx)
	if err == nil && !h.browser.IsConnected() {
		p.res.Invalidate(h)
		h, err = p.res.Acquire(ctx)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindNetwork, "browser unavailable")
	}

	page, err := h.context.NewPage()
	if err != nil {
		if ctx.Err() == nil {
			p.res.Invalidate(h)
		}
		return nil, transportError(ctx, eris.Wrap(err, "playwright: new page"), "open page")
	}
	stop := context.AfterFunc(ctx, func() { _ = page.Close() })
	defer func() {
		stop()
		if cerr := page.Close(); cerr != nil && !page.IsClosed() {
			zap.L().Warn("playwright: close page failed", zap.String("url", url), zap.Error(cerr))
		}
	}()

	if p.opts.BlockResources {
		err := page.Route("**/*", func(route playwright.Route) {
			if isSubresource(route.Request().ResourceType()) {
				_ = route.Abort("blockedbyclient")
				return
			}
			_ = route.Continue()
		})
		if err != nil {
			return nil, apperr.Wrap(eris.Wrap(err, "playwright: route"), apperr.KindNetwork, "request interception failed")
		}
	}

	resp, err := page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(remainingMs(ctx)),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return nil, playwrightError(ctx, eris.Wrap(err, "playwright: goto"), "navigate")
	}
	if resp != nil && resp.Status() >= 400 {
		return nil, statusError(resp.Status())
	}

	if opts.WaitSelector != "" {
		werr := page.Locator(opts.WaitSelector).First().WaitFor(playwright.LocatorWaitForOptions{
			Timeout: playwright.Float(float64(selectorWait(opts.Settle).Milliseconds())),
		})
		if werr != nil {
			zap.L().Debug("playwright: wait selector", zap.String("selector", opts.WaitSelector), zap.Error(werr))
		}
	} else if err := sleepCtx(ctx, opts.Settle); err != nil {
		return nil, transportError(ctx, err, "settle")
	}

	html, err := page.Content()
	if err != nil {
		return nil, playwrightError(ctx, eris.Wrap(err, "playwright: content"), "read page")
	}
	if blocked, bt := DetectBlockHTML([]byte(html)); blocked {
		return nil, blockError(bt)
	}

	doc, err := ExtractDocument(html, opts.MinChars)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindParsing, "could not parse page")
	}
	if doc.Title == "" {
		if t, terr := page.Title(); terr == nil {
			doc.Title = Clean(t)
		}
	}
	return &StrategyResult{Content: doc.Text, Title: doc.Title}, nil
}

func playwrightError(ctx context.Context, err error, action string) *apperr.Error {
	if errors.Is(err, playwright.ErrTimeout) {
		return apperr.Wrap(err, apperr.KindTimeout, action+" timed out")
	}
	return transportError(ctx, err, action)
}

// remainingMs is the time left on ctx in milliseconds, or 30s without a
// deadline.
func remainingMs(ctx context.Context) float64 {
	dl, ok := ctx.Deadline()
	if !ok {
		return 30000
	}
	ms := time.Until(dl).Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return float64(ms)
}
