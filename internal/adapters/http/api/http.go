// Package api exposes the incident tools over HTTP/JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/okian/rcagrade/internal/adapters/llm"
	"github.com/okian/rcagrade/internal/adapters/source"
	"github.com/okian/rcagrade/internal/domain/model"
	"github.com/okian/rcagrade/internal/domain/session"
	"github.com/okian/rcagrade/pkg/logger"
	"github.com/okian/rcagrade/pkg/metrics"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	IncidentDependencies
	SessionDependencies
	StatsProvider
}

// Server wires HTTP routes for the tool surface.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	incidentsHandler *IncidentsHandler
	sessionsHandler  *SessionsHandler
	logger           logger.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used by the request middleware.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(deps),
		incidentsHandler: NewIncidentsHandler(deps),
		sessionsHandler:  NewSessionsHandler(deps),
		logger:           logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) error {
	metricsHandler, err := metrics.Handler(metrics.GetRegistry())
	if err != nil {
		return err
	}

	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, RequestIDMiddleware(LoggingMiddleware(MetricsMiddleware(h, endpoint), s.logger)))
	}

	route("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	route("GET /stats", "stats", s.statsHandler.HandleStats)
	route("GET /columns", "columns", s.incidentsHandler.HandleColumns)
	route("GET /incidents", "incidents", s.incidentsHandler.HandleList)
	route("GET /incidents/{id}", "incident", s.incidentsHandler.HandleGet)
	route("POST /incidents/{id}/evaluate", "incident_evaluate", s.incidentsHandler.HandleEvaluate)
	route("POST /source/reload", "source_reload", s.incidentsHandler.HandleReload)
	route("GET /sessions/{id}", "session", s.sessionsHandler.HandleGet)
	route("POST /sessions/{id}/evaluate", "session_evaluate", s.sessionsHandler.HandleEvaluate)
	route("POST /sessions/{id}/critique", "session_critique", s.sessionsHandler.HandleCritique)
	route("POST /sessions/{id}/improve", "session_improve", s.sessionsHandler.HandleImprove)
	mux.Handle("GET /metrics", metricsHandler)
	return nil
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError translates upstream error kinds to a status and code.
func writeDomainError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	var te *llm.TransportError
	switch {
	case errors.Is(err, source.ErrNotFound), errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, source.ErrMapping):
		return http.StatusBadRequest, "mapping_error"
	case errors.Is(err, session.ErrNoEvaluation):
		return http.StatusConflict, "no_evaluation"
	case errors.Is(err, session.ErrStaleEvaluation):
		return http.StatusConflict, "stale_evaluation"
	case errors.Is(err, session.ErrIncidentMismatch):
		return http.StatusConflict, "incident_mismatch"
	case errors.As(err, &te) && te.Timeout:
		return http.StatusBadGateway, "upstream_timeout"
	case errors.Is(err, llm.ErrTransport):
		return http.StatusBadGateway, "upstream_transport"
	case errors.Is(err, llm.ErrMalformedResponse):
		return http.StatusBadGateway, "malformed_response"
	case errors.Is(err, model.ErrSchemaViolation):
		return http.StatusBadGateway, "schema_violation"
	case errors.Is(err, fs.ErrNotExist):
		return http.StatusServiceUnavailable, "source_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// columnMap overlays col_* query parameters on defaults.
func columnMap(r *http.Request, defaults source.ColumnMap) source.ColumnMap {
	q := r.URL.Query()
	pick := func(key, fallback string) string {
		if v := q.Get(key); v != "" {
			return v
		}
		return fallback
	}
	return source.ColumnMap{
		ID:               pick("col_id", defaults.ID),
		Summary:          pick("col_summary", defaults.Summary),
		Description:      pick("col_description", defaults.Description),
		RootCause:        pick("col_root_cause", defaults.RootCause),
		Resolution:       pick("col_resolution", defaults.Resolution),
		PreventiveAction: pick("col_preventive", defaults.PreventiveAction),
	}
}

// parseLimit reads a positive limit query parameter.
func parseLimit(r *http.Request, fallback int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, ErrInvalidLimit
	}
	return n, nil
}
