package scrape

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/opportunity-intake/internal/apperr"
	"github.com/sells-group/opportunity-intake/internal/browser"
	"github.com/sells-group/opportunity-intake/internal/model"
	"github.com/sells-group/opportunity-intake/internal/resilience"
)

// RodOptions configures browser A.
type RodOptions struct {
	// Bin is the Chrome binary; empty lets rod find or download one.
	Bin            string
	Headless       bool
	Stealth        bool
	UserAgent      string
	BlockResources bool
}

type rodHandle struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
}

// RodBrowser is the fast headless strategy. One Chrome process is shared by
// all runs; every run gets its own page.
type RodBrowser struct {
	opts RodOptions
	res  *browser.Resource[*rodHandle]
}

// NewRodBrowser creates browser A. Chrome is not launched until the first run.
func NewRodBrowser(opts RodOptions, breaker *resilience.CircuitBreaker) *RodBrowser {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	res := browser.NewResource("rod", launchRod(opts), closeRod, breaker)
	return &RodBrowser{opts: opts, res: res.WithLaunchRetry(launchRetry("rod"))}
}

func (r *RodBrowser) Name() model.Method { return model.MethodBrowserA }

// Close shuts Chrome down. Safe to call more than once.
func (r *RodBrowser) Close() { r.res.Close() }

func launchRod(opts RodOptions) browser.OpenFunc[*rodHandle] {
	return func(_ context.Context) (*rodHandle, error) {
		l := launcher.New().
			Headless(opts.Headless).
			Set("disable-blink-features", "AutomationControlled").
			Set("disable-dev-shm-usage").
			Set("disable-gpu").
			Set("no-sandbox").
			Set("disable-extensions")
		if opts.Bin != "" {
			l = l.Bin(opts.Bin)
		}

		u, err := l.Launch()
		if err != nil {
			return nil, eris.Wrap(err, "rod: launch")
		}
		b := rod.New().ControlURL(u)
		if err := b.Connect(); err != nil {
			l.Kill()
			return nil, eris.Wrap(err, "rod: connect")
		}
		return &rodHandle{browser: b, launcher: l}, nil
	}
}

func closeRod(h *rodHandle) error {
	err := h.browser.Close()
	h.launcher.Kill()
	h.launcher.Cleanup()
	return err
}

// Run opens a page, renders url, and extracts its content. The page is
// always closed, whatever the outcome.
func (r *RodBrowser) Run(ctx context.Context, url string, opts RunOptions) (*StrategyResult, error) {
	h, err := r.res.Acquire(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindNetwork, "browser unavailable")
	}

	var page *rod.Page
	if r.opts.Stealth {
		page, err = stealth.Page(h.browser)
	} else {
		page, err = h.browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		if ctx.Err() == nil {
			// A page that cannot be opened means Chrome went away.
			r.res.Invalidate(h)
		}
		return nil, transportError(ctx, eris.Wrap(err, "rod: open page"), "open page")
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			zap.L().Warn("rod: close page failed", zap.String("url", url), zap.Error(cerr))
		}
	}()

	if r.opts.BlockResources {
		router := page.HijackRequests()
		if err := router.Add("*", "", blockSubresources); err != nil {
			return nil, apperr.Wrap(eris.Wrap(err, "rod: hijack"), apperr.KindNetwork, "request interception failed")
		}
		go router.Run()
		defer func() {
			if serr := router.Stop(); serr != nil {
				zap.L().Debug("rod: stop router", zap.Error(serr))
			}
		}()
	}

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: r.opts.UserAgent}); err != nil {
		zap.L().Debug("rod: set user agent", zap.Error(err))
	}

	p := page.Context(ctx)
	mainDoc := watchDocumentStatus(ctx, page)
	defer mainDoc.cancel()
	if err := p.Navigate(url); err != nil {
		return nil, transportError(ctx, eris.Wrap(err, "rod: navigate"), "navigate")
	}
	if err := p.WaitLoad(); err != nil {
		return nil, transportError(ctx, eris.Wrap(err, "rod: wait load"), "page load")
	}
	if code := mainDoc.status(documentStatusWait); code >= 400 {
		return nil, statusError(code)
	}

	if opts.WaitSelector != "" {
		if _, err := p.Timeout(selectorWait(opts.Settle)).Element(opts.WaitSelector); err != nil {
			zap.L().Debug("rod: wait selector", zap.String("selector", opts.WaitSelector), zap.Error(err))
		}
	} else if err := sleepCtx(ctx, opts.Settle); err != nil {
		return nil, transportError(ctx, err, "settle")
	}

	html, err := p.HTML()
	if err != nil {
		return nil, transportError(ctx, eris.Wrap(err, "rod: read html"), "read page")
	}
	if blocked, bt := DetectBlockHTML([]byte(html)); blocked {
		return nil, blockError(bt)
	}

	doc, err := ExtractDocument(html, opts.MinChars)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindParsing, "could not parse page")
	}
	if doc.Title == "" {
		if info, ierr := p.Info(); ierr == nil {
			doc.Title = Clean(info.Title)
		}
	}
	return &StrategyResult{Content: doc.Text, Title: doc.Title}, nil
}

// documentStatusWait bounds how long Run waits, after load, for the main
// document's response event.
const documentStatusWait = 500 * time.Millisecond

// documentStatus captures the HTTP status of the first document response a
// page receives.
type documentStatus struct {
	done   chan struct{}
	code   atomic.Int64
	cancel context.CancelFunc
}

func watchDocumentStatus(ctx context.Context, page *rod.Page) *documentStatus {
	wctx, cancel := context.WithCancel(ctx)
	d := &documentStatus{done: make(chan struct{}), cancel: cancel}
	wait := page.Context(wctx).EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type != proto.NetworkResourceTypeDocument || e.Response == nil {
			return false
		}
		d.code.Store(int64(e.Response.Status))
		return true
	})
	go func() {
		defer close(d.done)
		wait()
	}()
	return d
}

// status returns the recorded code, or 0 when no document response arrived
// within timeout. It stops the watcher either way.
func (d *documentStatus) status(timeout time.Duration) int {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-d.done:
	case <-t.C:
	}
	d.cancel()
	return int(d.code.Load())
}

func blockSubresources(h *rod.Hijack) {
	if isSubresource(string(h.Request.Type())) {
		h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		return
	}
	h.ContinueRequest(&proto.FetchContinueRequest{})
}

// isSubresource reports whether a CDP or Playwright resource type is
// non-essential for reading text.
func isSubresource(resourceType string) bool {
	switch resourceType {
	case "Image", "Font", "Stylesheet", "Media",
		"image", "font", "stylesheet", "media":
		return true
	}
	return false
}

// selectorWait bounds how long a browser waits for WaitSelector.
func selectorWait(settle time.Duration) time.Duration {
	if d := 5 * settle; d > 5*time.Second {
		return d
	}
	return 5 * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
