// Package server exposes submissions over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"

	"github.com/sells-group/opportunity-intake/internal/gateway"
	"github.com/sells-group/opportunity-intake/internal/model"
	"github.com/sells-group/opportunity-intake/internal/store"
	"github.com/sells-group/opportunity-intake/internal/submission"
)

// Submitter runs a submission. *submission.Coordinator satisfies it.
type Submitter interface {
	Submit(ctx context.Context, req submission.Request) (*model.Opportunity, error)
}

// Previewer runs a smart scrape without storing anything.
type Previewer interface {
	SmartScrape(ctx context.Context, req gateway.Request) *gateway.Result
}

// Reader lists and fetches stored opportunities.
type Reader interface {
	GetOpportunity(ctx context.Context, id string) (*model.Opportunity, error)
	ListOpportunities(ctx context.Context, filter store.OpportunityFilter) ([]model.Opportunity, error)
}

// Config holds HTTP settings.
type Config struct {
	RequestsPerMinute int
	AllowedOrigins    []string
	// RequestTimeout bounds each request. Submissions can take a while when
	// both browsers run.
	RequestTimeout time.Duration
}

// Server holds the handler dependencies.
type Server struct {
	submitter Submitter
	previewer Previewer
	reader    Reader
	cfg       Config
}

// New creates a Server.
func New(submitter Submitter, previewer Previewer, reader Reader, cfg Config) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 3 * time.Minute
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	return &Server{submitter: submitter, previewer: previewer, reader: reader, cfg: cfg}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))
		if s.cfg.RequestsPerMinute > 0 {
			r.Use(httprate.LimitByIP(s.cfg.RequestsPerMinute, time.Minute))
		}
		r.Post("/opportunities", s.handleSubmit)
		r.Get("/opportunities", s.handleList)
		r.Get("/opportunities/{id}", s.handleGet)
		r.Post("/scrape", s.handleScrape)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("server: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
