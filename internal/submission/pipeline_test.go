package submission

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/opportunity-intake/internal/apperr"
	"github.com/sells-group/opportunity-intake/internal/extract"
	"github.com/sells-group/opportunity-intake/internal/gateway"
	"github.com/sells-group/opportunity-intake/internal/scrape"
	"github.com/sells-group/opportunity-intake/internal/sitepolicy"
	"github.com/sells-group/opportunity-intake/internal/store"
	"github.com/sells-group/opportunity-intake/pkg/anthropic"
)

type mockAI struct {
	mock.Mock
}

func (m *mockAI) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

const acmePage = `<!doctype html><html><head><title>Data Science Intern - Acme</title></head>
<body>
<header><nav>Jobs | Teams | Benefits</nav></header>
<main>
  <h1>Data Science Intern</h1>
  <p>Acme is looking for a Data Science Intern to join the analytics team for Summer 2026.</p>
  <p>You will build dashboards and statistical models with real customer data.</p>
  <h2>Requirements</h2>
  <ul><li>Pursuing a degree in Statistics or Computer Science</li><li>Comfortable with SQL</li></ul>
  <p>Applications close March 1, 2026.</p>
</main>
<footer>Acme Inc.</footer>
</body></html>`

const acmeCompletion = "```json\n" + `{
  "company_name": "Acme",
  "job_title": "Data Science Intern",
  "opportunity_type": "internship",
  "role_type": "Data Science",
  "relevant_majors": ["Statistics", "Computer Science"],
  "deadline": "March 1, 2026",
  "requirements": "Pursuing a degree in Statistics or Computer Science; SQL",
  "location": null,
  "description": "Build dashboards and statistical models."
}` + "\n```"

type pipeline struct {
	coordinator *Coordinator
	store       *store.SQLiteStore
	ai          *mockAI
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "intake.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	orch := scrape.NewOrchestrator(scrape.OrchestratorConfig{StaticTimeout: 5 * time.Second},
		scrape.NewStaticFetcher(scrape.StaticOptions{}))
	gw := gateway.New(orch, sitepolicy.NewClassifier(nil, nil), gateway.Config{Timeout: 10 * time.Second})

	ai := &mockAI{}
	ex := extract.NewClient(ai, extract.Config{})

	return &pipeline{
		coordinator: NewCoordinator(gw, ex, st, Config{
			Timeout: 30 * time.Second,
			Extract: extract.Options{Timeout: 5 * time.Second, MaxRetries: 3, RetryDelay: time.Millisecond},
		}),
		store: st,
		ai:    ai,
	}
}

func TestPipeline_AcmeEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(acmePage))
	}))
	defer srv.Close()

	p := newPipeline(t)
	p.ai.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		body := req.Messages[0].Content
		return strings.Contains(body, "Applications close March 1, 2026.") && !strings.Contains(body, "Jobs | Teams")
	})).Return(&anthropic.MessageResponse{Content: []anthropic.ContentBlock{{Type: "text", Text: acmeCompletion}}}, nil).Once()

	url := srv.URL + "/careers/data-science-intern"
	o, err := p.coordinator.Submit(context.Background(), Request{URL: url, SubmittedBy: "student-1"})
	require.NoError(t, err)

	assert.Equal(t, "Acme", o.CompanyName)
	assert.Equal(t, "Data Science Intern", o.JobTitle)
	require.NotNil(t, o.Deadline)
	assert.Equal(t, "2026-03-01", *o.Deadline)
	assert.Equal(t, []string{"Statistics", "Computer Science"}, o.RelevantMajors)
	assert.Nil(t, o.Location)
	assert.Equal(t, "static", o.ScrapeMethod)

	stored, err := p.store.GetOpportunityByURL(context.Background(), url)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, o.ID, stored.ID)
	assert.Equal(t, "2026-03-01", *stored.Deadline)

	// A second submission of the same URL is rejected before any scraping.
	_, err = p.coordinator.Submit(context.Background(), Request{URL: url})
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindDuplicate, ae.Kind)
	assert.Equal(t, o.ID, ae.Conflict.ID)
	p.ai.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestPipeline_RestrictedWithPastedText(t *testing.T) {
	p := newPipeline(t)
	pasted := "Acme Data Science Intern. Remote. Open to Statistics majors. Apply by March 1, 2026."
	p.ai.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return strings.Contains(req.Messages[0].Content, "Open to Statistics majors")
	})).Return(&anthropic.MessageResponse{Content: []anthropic.ContentBlock{{Text: acmeCompletion}}}, nil)

	o, err := p.coordinator.Submit(context.Background(), Request{
		URL:             "https://www.linkedin.com/jobs/view/4242",
		ManualContent:   pasted,
		CompanyName:     "Acme Corp",
		OpportunityType: "full_time",
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", o.CompanyName)
	assert.Equal(t, "full_time", string(o.OpportunityType))
	assert.Equal(t, "manual", o.ScrapeMethod)
}

func TestPipeline_RestrictedWithoutPastedText(t *testing.T) {
	p := newPipeline(t)

	_, err := p.coordinator.Submit(context.Background(), Request{URL: "https://www.linkedin.com/jobs/view/4242"})
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindScrapeFailed, ae.Kind)
	assert.True(t, ae.RequiresManual)
	assert.Contains(t, ae.Guidance, "LinkedIn")
	p.ai.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestPipeline_YearlessDeadlineStoredAsNull(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(acmePage))
	}))
	defer srv.Close()

	completion := strings.Replace(acmeCompletion, `"March 1, 2026"`, `"12/31"`, 1)
	p := newPipeline(t)
	p.ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(&anthropic.MessageResponse{Content: []anthropic.ContentBlock{{Text: completion}}}, nil).Once()

	o, err := p.coordinator.Submit(context.Background(), Request{URL: srv.URL + "/careers/intern"})
	require.NoError(t, err)
	assert.Nil(t, o.Deadline)

	n, err := p.store.ExpirePastDeadline(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, n)

	stored, err := p.store.GetOpportunity(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Deadline)
	assert.Equal(t, "active", string(stored.Status))
}
