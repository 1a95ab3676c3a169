// Package api exposes the quote engine over HTTP: quote generation,
// offline re-filtering of stored quotes and administrative cache
// invalidation.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	errs "ichra-quotes/internal/common/errors"
	"ichra-quotes/internal/common/logger"
	"ichra-quotes/internal/common/validation"
	"ichra-quotes/internal/models"
)

// QuoteService is what the server needs from the engine.
type QuoteService interface {
	GenerateGroupQuote(ctx context.Context, group *models.Group, filters models.PlanFilters) (*models.QuoteResult, error)
	ApplyFiltersToQuote(ctx context.Context, quoteID string, filters models.PlanFilters) (*models.FilteredQuoteView, error)
	InvalidateGroup(ctx context.Context, groupID string) error
}

// Server routes HTTP requests to the engine.
type Server struct {
	engine QuoteService
	log    logger.Logger
}

func NewServer(engine QuoteService, log logger.Logger) *Server {
	return &Server{
		engine: engine,
		log:    log.WithFields(map[string]interface{}{"component": "api"}),
	}
}

// Register attaches the quote routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /quotes", s.handleGenerateQuote)
	mux.HandleFunc("POST /quotes/{id}/filters", s.handleApplyFilters)
	mux.HandleFunc("POST /admin/groups/{id}/invalidate", s.handleInvalidateGroup)
}

// quoteRequest is the POST /quotes payload.
type quoteRequest struct {
	Group   models.Group       `json:"group"`
	Filters models.PlanFilters `json:"filters"`
}

// filterRequest is the POST /quotes/{id}/filters payload.
type filterRequest struct {
	Filters models.PlanFilters `json:"filters"`
}

func (s *Server) handleGenerateQuote(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		s.writeError(w, errs.NewInvalidFilterInputError("unreadable request body"))
		return
	}
	if err := validation.ValidateQuoteRequest(body); err != nil {
		s.writeError(w, err)
		return
	}

	var req quoteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, errs.NewInvalidFilterInputError("malformed request: "+err.Error()))
		return
	}

	quote, err := s.engine.GenerateGroupQuote(r.Context(), &req.Group, req.Filters)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, quote)
}

func (s *Server) handleApplyFilters(w http.ResponseWriter, r *http.Request) {
	quoteID := r.PathValue("id")

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeError(w, errs.NewInvalidFilterInputError("unreadable request body"))
		return
	}

	var req filterRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, errs.NewInvalidFilterInputError("malformed request: "+err.Error()))
		return
	}

	view, err := s.engine.ApplyFiltersToQuote(r.Context(), quoteID, req.Filters)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleInvalidateGroup(w http.ResponseWriter, r *http.Request) {
	groupID := strings.TrimSpace(r.PathValue("id"))
	if groupID == "" {
		s.writeError(w, errs.NewInvalidFilterInputError("group id is required"))
		return
	}

	if err := s.engine.InvalidateGroup(r.Context(), groupID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"groupId":       groupID,
		"invalidatedAt": time.Now().UTC().Format(time.RFC3339),
	})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(code errs.ErrorCode) int {
	switch code {
	case errs.ErrCodeInvalidFilterInput:
		return http.StatusBadRequest
	case errs.ErrCodeQuoteNotFound:
		return http.StatusNotFound
	case errs.ErrCodeQuoteExpired:
		return http.StatusGone
	case errs.ErrCodeNoPlansAvailable, errs.ErrCodeNoSilverBenchmark, errs.ErrCodeGeographyNotResolved:
		return http.StatusUnprocessableEntity
	case errs.ErrCodeRateLimitExceeded, errs.ErrCodeTrialLimitExceeded:
		return http.StatusTooManyRequests
	case errs.ErrCodeComplianceUnavailable, errs.ErrCodeServiceUnavailable,
		errs.ErrCodeCacheUnavailable, errs.ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := errs.CodeOf(err)
	status := statusFor(code)

	if status >= 500 {
		s.log.WithError(err).Error("request failed", map[string]interface{}{"code": string(code)})
	} else {
		s.log.Info("request rejected", map[string]interface{}{
			"code":   string(code),
			"detail": err.Error(),
		})
	}

	var body interface{}
	if stdErr, ok := err.(*errs.StandardError); ok {
		body = stdErr
	} else {
		body = map[string]string{"code": string(code), "message": err.Error()}
	}
	s.writeJSON(w, status, map[string]interface{}{"error": body})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Error("response encode failed", nil)
	}
}
