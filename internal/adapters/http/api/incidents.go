package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/rcagrade/internal/adapters/source"
	"github.com/okian/rcagrade/internal/domain/model"
)

// IncidentDependencies defines the interface for incident lookups and
// one-shot evaluation.
type IncidentDependencies interface {
	Columns(ctx context.Context) ([]string, error)
	ListIncidents(ctx context.Context, limit int) ([]source.Listing, error)
	GetIncident(ctx context.Context, m source.ColumnMap, id string) (model.Incident, error)
	EvaluateIncident(ctx context.Context, m source.ColumnMap, id string) (*model.EvaluationResult, error)
	ReloadSource(ctx context.Context)
	DefaultColumnMap() source.ColumnMap
	ListLimit() int
}

// IncidentsHandler handles incident requests.
type IncidentsHandler struct {
	deps IncidentDependencies
}

// NewIncidentsHandler creates a new incidents handler.
func NewIncidentsHandler(deps IncidentDependencies) *IncidentsHandler {
	return &IncidentsHandler{deps: deps}
}

type columnsResponse struct {
	Columns []string `json:"columns"`
}

type incidentsResponse struct {
	Incidents []source.Listing `json:"incidents"`
}

type reloadResponse struct {
	Status string `json:"status"`
}

// HandleColumns handles GET /columns requests.
func (h *IncidentsHandler) HandleColumns(w http.ResponseWriter, r *http.Request) {
	cols, err := h.deps.Columns(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, columnsResponse{Columns: cols})
}

// HandleList handles GET /incidents?limit=N requests.
func (h *IncidentsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, h.deps.ListLimit())
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	list, err := h.deps.ListIncidents(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, incidentsResponse{Incidents: list})
}

// HandleGet handles GET /incidents/{id} requests.
func (h *IncidentsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := incidentID(w, r)
	if !ok {
		return
	}
	inc, err := h.deps.GetIncident(r.Context(), columnMap(r, h.deps.DefaultColumnMap()), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

// HandleEvaluate handles POST /incidents/{id}/evaluate requests.
func (h *IncidentsHandler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	id, ok := incidentID(w, r)
	if !ok {
		return
	}
	res, err := h.deps.EvaluateIncident(r.Context(), columnMap(r, h.deps.DefaultColumnMap()), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleReload handles POST /source/reload requests.
func (h *IncidentsHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	h.deps.ReloadSource(r.Context())
	writeJSON(w, http.StatusOK, reloadResponse{Status: "reloaded"})
}

func incidentID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return "", false
	}
	return id, true
}
