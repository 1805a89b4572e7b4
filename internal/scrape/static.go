package scrape

import (
	"context"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/opportunity-intake/internal/apperr"
	"github.com/sells-group/opportunity-intake/internal/model"
)

// DefaultUserAgent is sent by the static fetcher and the browsers.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

const maxStaticBody = 2 << 20

// StaticOptions configures the static fetcher.
type StaticOptions struct {
	UserAgent string
	Client    *http.Client
}

// StaticFetcher issues one GET per run and extracts text without executing
// scripts.
type StaticFetcher struct {
	client    *http.Client
	userAgent string
}

// NewStaticFetcher creates a StaticFetcher. Timeouts come from the run
// context, so the default client has none of its own.
func NewStaticFetcher(opts StaticOptions) *StaticFetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxIdleConnsPerHost: 4,
			},
		}
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	return &StaticFetcher{client: client, userAgent: ua}
}

func (s *StaticFetcher) Name() model.Method { return model.MethodStatic }

// Run fetches url and extracts its content.
func (s *StaticFetcher) Run(ctx context.Context, url string, opts RunOptions) (*StrategyResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.Wrap(eris.Wrap(err, "static: create request"), apperr.KindNetwork, "invalid request")
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, eris.Wrap(err, "static: fetch"), "fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStaticBody))
	if err != nil {
		return nil, transportError(ctx, eris.Wrap(err, "static: read body"), "read body")
	}

	if blocked, bt := DetectBlock(resp, body); blocked {
		zap.L().Debug("static: blocked",
			zap.String("url", url),
			zap.String("block", string(bt)),
			zap.Int("status", resp.StatusCode),
		)
		return nil, blockError(bt)
	}
	if resp.StatusCode >= 400 {
		return nil, statusError(resp.StatusCode)
	}

	if isPlainText(resp.Header.Get("Content-Type")) {
		return &StrategyResult{Content: Clean(string(body))}, nil
	}
	if !isHTML(resp.Header.Get("Content-Type")) {
		return nil, apperr.New(apperr.KindParsing, "unsupported content type "+resp.Header.Get("Content-Type"))
	}

	doc, err := ExtractDocument(string(body), opts.MinChars)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindParsing, "could not parse page")
	}
	return &StrategyResult{Content: doc.Text, Title: doc.Title}, nil
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

// isHTML treats a missing content type as HTML.
func isHTML(contentType string) bool {
	switch mediaType(contentType) {
	case "", "text/html", "application/xhtml+xml":
		return true
	}
	return false
}

func isPlainText(contentType string) bool {
	return mediaType(contentType) == "text/plain"
}
