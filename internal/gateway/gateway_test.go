package gateway

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/opportunity-intake/internal/model"
	"github.com/sells-group/opportunity-intake/internal/scrape"
	"github.com/sells-group/opportunity-intake/internal/sitepolicy"
)

// mockScraper implements Scraper for testing.
type mockScraper struct {
	mock.Mock
}

func (m *mockScraper) Scrape(ctx context.Context, url string, opts scrape.Options) *model.ScrapeResult {
	args := m.Called(ctx, url, opts)
	return args.Get(0).(*model.ScrapeResult)
}

var (
	pasted   = strings.Repeat("Pasted posting text. ", 5)
	scraped  = &model.ScrapeResult{Success: true, Content: "scraped content", Title: "Intern", Method: model.MethodStatic}
	failed   = &model.ScrapeResult{Error: "all 3 strategies failed", FallbackChain: []model.ScrapeAttempt{{Strategy: model.MethodStatic}}}
	linkedin = "https://www.linkedin.com/jobs/view/123"
	plain    = "https://example.com/job"
)

func newGateway(s Scraper) *Gateway {
	return New(s, sitepolicy.NewClassifier(nil, nil), Config{ScriptHeavySettle: 3 * time.Second})
}

func TestSmartScrape_RestrictedWithManual(t *testing.T) {
	s := &mockScraper{}
	res := newGateway(s).SmartScrape(context.Background(), Request{URL: linkedin, ManualContent: pasted})

	require.True(t, res.Success)
	assert.Equal(t, MethodManual, res.Method)
	assert.True(t, res.Restricted)
	assert.Equal(t, strings.TrimSpace(pasted), res.Content)
	s.AssertNotCalled(t, "Scrape", mock.Anything, mock.Anything, mock.Anything)
}

func TestSmartScrape_RestrictedWithoutManual(t *testing.T) {
	s := &mockScraper{}
	res := newGateway(s).SmartScrape(context.Background(), Request{URL: linkedin})

	assert.False(t, res.Success)
	assert.True(t, res.RequiresManual)
	assert.Contains(t, res.Guidance, "LinkedIn")
	s.AssertNotCalled(t, "Scrape", mock.Anything, mock.Anything, mock.Anything)
}

func TestSmartScrape_RestrictedNeverScrapes(t *testing.T) {
	urls := []string{
		"https://linkedin.com/in/x",
		"https://m.facebook.com/jobs/1",
		"https://www.instagram.com/p/1",
		"https://x.com/acme",
		"https://www.glassdoor.com/job-listing/1",
		"https://app.joinhandshake.com/jobs/1",
	}
	for _, u := range urls {
		for _, manual := range []string{"", "short", pasted} {
			s := &mockScraper{}
			newGateway(s).SmartScrape(context.Background(), Request{URL: u, ManualContent: manual})
			s.AssertNotCalled(t, "Scrape", mock.Anything, mock.Anything, mock.Anything)
		}
	}
}

func TestSmartScrape_AutoSuccessIgnoresManual(t *testing.T) {
	s := &mockScraper{}
	s.On("Scrape", mock.Anything, plain, scrape.Options{}).Return(scraped)

	res := newGateway(s).SmartScrape(context.Background(), Request{URL: plain, ManualContent: pasted})

	require.True(t, res.Success)
	assert.Equal(t, MethodAuto, res.Method)
	assert.Equal(t, model.MethodStatic, res.Strategy)
	assert.Equal(t, "scraped content", res.Content)
	s.AssertExpectations(t)
}

func TestSmartScrape_AutoFailureFallsBackToManual(t *testing.T) {
	s := &mockScraper{}
	s.On("Scrape", mock.Anything, plain, mock.Anything).Return(failed)

	res := newGateway(s).SmartScrape(context.Background(), Request{URL: plain, ManualContent: pasted})

	require.True(t, res.Success)
	assert.Equal(t, MethodManual, res.Method)
	assert.False(t, res.Restricted)
	assert.Len(t, res.FallbackChain, 1)
}

func TestSmartScrape_AutoFailureNoManual(t *testing.T) {
	s := &mockScraper{}
	s.On("Scrape", mock.Anything, plain, mock.Anything).Return(failed)

	res := newGateway(s).SmartScrape(context.Background(), Request{URL: plain})

	assert.False(t, res.Success)
	assert.True(t, res.RequiresManual)
	assert.Contains(t, res.Error, "all 3 strategies failed")
	assert.Empty(t, res.Guidance)
}

func TestSmartScrape_ManualBelowFloor(t *testing.T) {
	manual49 := "  " + strings.Repeat("a", 49) + "\n "
	require.Equal(t, 49, scrape.Len(manual49))

	s := &mockScraper{}
	s.On("Scrape", mock.Anything, plain, mock.Anything).Return(failed)
	res := newGateway(s).SmartScrape(context.Background(), Request{URL: plain, ManualContent: manual49})
	assert.False(t, res.Success)
	assert.True(t, res.RequiresManual)

	res = newGateway(&mockScraper{}).SmartScrape(context.Background(), Request{URL: linkedin, ManualContent: manual49})
	assert.False(t, res.Success)
	assert.True(t, res.RequiresManual)

	manual50 := strings.Repeat("a", 50)
	res = newGateway(&mockScraper{}).SmartScrape(context.Background(), Request{URL: linkedin, ManualContent: manual50})
	assert.True(t, res.Success)
}

func TestSmartScrape_ScriptHeavySkipsStatic(t *testing.T) {
	s := &mockScraper{}
	s.On("Scrape", mock.Anything, "https://boards.greenhouse.io/acme/jobs/1", scrape.Options{
		SkipStatic: true,
		Settle:     3 * time.Second,
	}).Return(scraped)

	res := newGateway(s).SmartScrape(context.Background(), Request{URL: "https://boards.greenhouse.io/acme/jobs/1"})
	assert.True(t, res.Success)
	s.AssertExpectations(t)
}

func TestSmartScrape_TimeoutBoundsRun(t *testing.T) {
	s := &mockScraper{}
	s.On("Scrape", mock.MatchedBy(func(ctx context.Context) bool {
		dl, ok := ctx.Deadline()
		return ok && time.Until(dl) <= 5*time.Second
	}), plain, mock.Anything).Return(scraped)

	newGateway(s).SmartScrape(context.Background(), Request{URL: plain, Timeout: 5 * time.Second})
	s.AssertExpectations(t)
}
