package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/opportunity-intake/internal/apperr"
	"github.com/sells-group/opportunity-intake/internal/gateway"
	"github.com/sells-group/opportunity-intake/internal/model"
	"github.com/sells-group/opportunity-intake/internal/store"
	"github.com/sells-group/opportunity-intake/internal/submission"
)

type mockSubmitter struct {
	mock.Mock
}

func (m *mockSubmitter) Submit(ctx context.Context, req submission.Request) (*model.Opportunity, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Opportunity), args.Error(1)
}

type mockPreviewer struct {
	mock.Mock
}

func (m *mockPreviewer) SmartScrape(ctx context.Context, req gateway.Request) *gateway.Result {
	return m.Called(ctx, req).Get(0).(*gateway.Result)
}

type mockReader struct {
	mock.Mock
}

func (m *mockReader) GetOpportunity(ctx context.Context, id string) (*model.Opportunity, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Opportunity), args.Error(1)
}

func (m *mockReader) ListOpportunities(ctx context.Context, f store.OpportunityFilter) ([]model.Opportunity, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Opportunity), args.Error(1)
}

type fixture struct {
	sub *mockSubmitter
	pre *mockPreviewer
	rd  *mockReader
	h   http.Handler
}

func newFixture() *fixture {
	f := &fixture{sub: &mockSubmitter{}, pre: &mockPreviewer{}, rd: &mockReader{}}
	f.h = New(f.sub, f.pre, f.rd, Config{}).Handler()
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	rec := newFixture().do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

type pingingReader struct {
	mockReader
	err error
}

func (p *pingingReader) Ping(context.Context) error { return p.err }

func TestHealth_StorePing(t *testing.T) {
	rd := &pingingReader{}
	h := New(&mockSubmitter{}, &mockPreviewer{}, rd, Config{}).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rd.err = errors.New("connection refused")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unavailable"}`, rec.Body.String())
}

func TestSubmit_Created(t *testing.T) {
	f := newFixture()
	f.sub.On("Submit", mock.Anything, submission.Request{URL: "https://example.com/job", CompanyName: "Acme"}).
		Return(&model.Opportunity{ID: "opp-1", URL: "https://example.com/job", CompanyName: "Acme"}, nil)

	rec := f.do(http.MethodPost, "/api/opportunities", `{"url":"https://example.com/job","company_name":"Acme"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "opp-1", body["id"])
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestSubmit_ErrorRendering(t *testing.T) {
	dup := apperr.New(apperr.KindDuplicate, "this opportunity has already been submitted")
	dup.Conflict = &apperr.Conflict{ID: "opp-1", URL: "https://example.com/job", CompanyName: "Acme", JobTitle: "Intern"}

	manual := apperr.New(apperr.KindScrapeFailed, "paste the posting text to continue")
	manual.RequiresManual = true
	manual.Guidance = "LinkedIn requires you to be signed in"

	cases := []struct {
		name   string
		err    error
		status int
		check  func(t *testing.T, body map[string]any)
	}{
		{"duplicate", dup, http.StatusConflict, func(t *testing.T, body map[string]any) {
			assert.Equal(t, "duplicate", body["kind"])
			conflict := body["conflict"].(map[string]any)
			assert.Equal(t, "opp-1", conflict["id"])
		}},
		{"requires manual", manual, http.StatusInternalServerError, func(t *testing.T, body map[string]any) {
			assert.Equal(t, true, body["requires_manual"])
			assert.Contains(t, body["guidance"], "LinkedIn")
		}},
		{"rate limited", eris.Wrap(apperr.New(apperr.KindRateLimited, "try again shortly"), "outer"), http.StatusTooManyRequests, nil},
		{"invalid url", apperr.New(apperr.KindInvalidURL, "the URL is not valid"), http.StatusBadRequest, func(t *testing.T, body map[string]any) {
			assert.Equal(t, "the URL is not valid", body["error"])
		}},
		{"unclassified", errors.New("db exploded"), http.StatusInternalServerError, func(t *testing.T, body map[string]any) {
			assert.Equal(t, "internal error", body["error"])
			assert.Equal(t, "unknown", body["kind"])
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			f.sub.On("Submit", mock.Anything, mock.Anything).Return(nil, tc.err)
			rec := f.do(http.MethodPost, "/api/opportunities", `{"url":"https://example.com/job"}`)
			assert.Equal(t, tc.status, rec.Code)
			if tc.check != nil {
				tc.check(t, decode(t, rec))
			}
		})
	}
}

func TestSubmit_BadBody(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodPost, "/api/opportunities", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_content", decode(t, rec)["kind"])
	f.sub.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestList(t *testing.T) {
	f := newFixture()
	f.rd.On("ListOpportunities", mock.Anything, store.OpportunityFilter{Status: model.StatusActive, Limit: 10, Offset: 20}).
		Return([]model.Opportunity{{ID: "a"}, {ID: "b"}}, nil)

	rec := f.do(http.MethodGet, "/api/opportunities?status=active&limit=10&offset=20", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(2), body["count"])
}

func TestList_EmptyIsArray(t *testing.T) {
	f := newFixture()
	f.rd.On("ListOpportunities", mock.Anything, store.OpportunityFilter{}).Return(nil, nil)

	rec := f.do(http.MethodGet, "/api/opportunities", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"opportunities":[],"count":0}`, rec.Body.String())
}

func TestList_BadParams(t *testing.T) {
	f := newFixture()
	for _, q := range []string{"?status=archived", "?limit=abc", "?offset=-1"} {
		rec := f.do(http.MethodGet, "/api/opportunities"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
	f.rd.AssertNotCalled(t, "ListOpportunities", mock.Anything, mock.Anything)
}

func TestGet(t *testing.T) {
	f := newFixture()
	f.rd.On("GetOpportunity", mock.Anything, "opp-1").Return(&model.Opportunity{ID: "opp-1"}, nil)
	f.rd.On("GetOpportunity", mock.Anything, "missing").Return(nil, eris.Wrap(store.ErrNotFound, "sqlite: get opportunity missing"))

	rec := f.do(http.MethodGet, "/api/opportunities/opp-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "opp-1", decode(t, rec)["id"])

	rec = f.do(http.MethodGet, "/api/opportunities/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScrapePreview(t *testing.T) {
	f := newFixture()
	f.pre.On("SmartScrape", mock.Anything, gateway.Request{URL: "https://example.com/job", Force: model.MethodBrowserA}).
		Return(&gateway.Result{Success: true, Content: "text", Method: gateway.MethodAuto, Strategy: model.MethodBrowserA})

	rec := f.do(http.MethodPost, "/api/scrape", `{"url":" https://example.com/job ","strategy":"browser_a"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "browser_a", body["strategy"])
}

func TestScrapePreview_InvalidURL(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodPost, "/api/scrape", `{"url":"mailto:someone@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.pre.AssertNotCalled(t, "SmartScrape", mock.Anything, mock.Anything)
}

func TestRateLimit(t *testing.T) {
	f := &fixture{sub: &mockSubmitter{}, pre: &mockPreviewer{}, rd: &mockReader{}}
	f.rd.On("ListOpportunities", mock.Anything, mock.Anything).Return([]model.Opportunity{}, nil)
	f.h = New(f.sub, f.pre, f.rd, Config{RequestsPerMinute: 2}).Handler()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, f.do(http.MethodGet, "/api/opportunities", "").Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", "").Code, "health is not rate limited")
}

func TestCORS(t *testing.T) {
	f := &fixture{sub: &mockSubmitter{}, pre: &mockPreviewer{}, rd: &mockReader{}}
	f.h = New(f.sub, f.pre, f.rd, Config{AllowedOrigins: []string{"https://app.example.com"}}).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/opportunities", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
