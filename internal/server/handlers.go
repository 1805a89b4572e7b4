package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/opportunity-intake/internal/apperr"
	"github.com/sells-group/opportunity-intake/internal/gateway"
	"github.com/sells-group/opportunity-intake/internal/model"
	"github.com/sells-group/opportunity-intake/internal/store"
	"github.com/sells-group/opportunity-intake/internal/submission"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error          string           `json:"error"`
	Kind           apperr.Kind      `json:"kind"`
	RequiresManual bool             `json:"requires_manual"`
	Guidance       string           `json:"guidance,omitempty"`
	Conflict       *apperr.Conflict `json:"conflict,omitempty"`
}

type scrapeRequest struct {
	URL           string `json:"url"`
	ManualContent string `json:"manual_content,omitempty"`
	Strategy      string `json:"strategy,omitempty"`
}

type listResponse struct {
	Opportunities []model.Opportunity `json:"opportunities"`
	Count         int                 `json:"count"`
}

// pinger is implemented by stores that can report connectivity.
type pinger interface {
	Ping(ctx context.Context) error
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.reader.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			zap.L().Warn("server: health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submission.Request
	if !decodeBody(w, r, &req) {
		return
	}
	o, err := s.submitter.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.OpportunityFilter{Status: model.Status(q.Get("status"))}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, apperr.New(apperr.KindInvalidContent, "status must be active or expired"))
		return
	}
	var ok bool
	if filter.Limit, ok = intParam(w, q.Get("limit"), "limit"); !ok {
		return
	}
	if filter.Offset, ok = intParam(w, q.Get("offset"), "offset"); !ok {
		return
	}

	out, err := s.reader.ListOpportunities(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if out == nil {
		out = []model.Opportunity{}
	}
	writeJSON(w, http.StatusOK, listResponse{Opportunities: out, Count: len(out)})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	o, err := s.reader.GetOpportunity(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "opportunity not found", Kind: apperr.KindUnknown})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	u, err := submission.ValidateURL(req.URL)
	if err != nil {
		writeError(w, err)
		return
	}
	res := s.previewer.SmartScrape(r.Context(), gateway.Request{
		URL:           u,
		ManualContent: req.ManualContent,
		Force:         model.Method(req.Strategy),
	})
	writeJSON(w, http.StatusOK, res)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, apperr.Wrap(err, apperr.KindInvalidContent, "request body must be a JSON object"))
		return false
	}
	return true
}

func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, apperr.New(apperr.KindInvalidContent, name+" must be a non-negative integer"))
		return 0, false
	}
	return n, true
}

// writeError renders the outermost classified error. Unclassified errors are
// logged and reported without detail.
func writeError(w http.ResponseWriter, err error) {
	ae, ok := apperr.As(err)
	if !ok {
		zap.L().Error("server: unclassified error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Kind: apperr.KindUnknown})
		return
	}
	status := apperr.HTTPStatus(ae.Kind)
	if status >= http.StatusInternalServerError {
		zap.L().Warn("server: request failed", zap.String("kind", string(ae.Kind)), zap.Error(err))
	}
	writeJSON(w, status, errorResponse{
		Error:          ae.Message,
		Kind:           ae.Kind,
		RequiresManual: ae.RequiresManual,
		Guidance:       ae.Guidance,
		Conflict:       ae.Conflict,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("server: encode response", zap.Error(err))
	}
}
