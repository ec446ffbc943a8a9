package api

import (
	"context"
	"net/http"

	"github.com/okian/rcagrade/internal/adapters/source"
	"github.com/okian/rcagrade/internal/domain/session"
)

// SessionDependencies defines the interface for the per-incident
// evaluate, critique and improve flow.
type SessionDependencies interface {
	Session(ctx context.Context, id string) (session.State, error)
	SessionEvaluate(ctx context.Context, m source.ColumnMap, id string) (session.State, error)
	SessionCritique(ctx context.Context, m source.ColumnMap, id string) (session.State, error)
	SessionImprove(ctx context.Context, m source.ColumnMap, id string) (session.State, error)
	DefaultColumnMap() source.ColumnMap
}

// SessionsHandler handles session requests.
type SessionsHandler struct {
	deps SessionDependencies
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionDependencies) *SessionsHandler {
	return &SessionsHandler{deps: deps}
}

// HandleGet handles GET /sessions/{id} requests.
func (h *SessionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := incidentID(w, r)
	if !ok {
		return
	}
	st, err := h.deps.Session(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleEvaluate handles POST /sessions/{id}/evaluate requests.
func (h *SessionsHandler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.deps.SessionEvaluate)
}

// HandleCritique handles POST /sessions/{id}/critique requests.
func (h *SessionsHandler) HandleCritique(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.deps.SessionCritique)
}

// HandleImprove handles POST /sessions/{id}/improve requests.
func (h *SessionsHandler) HandleImprove(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.deps.SessionImprove)
}

type transitionFunc func(ctx context.Context, m source.ColumnMap, id string) (session.State, error)

func (h *SessionsHandler) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	id, ok := incidentID(w, r)
	if !ok {
		return
	}
	st, err := fn(r.Context(), columnMap(r, h.deps.DefaultColumnMap()), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
