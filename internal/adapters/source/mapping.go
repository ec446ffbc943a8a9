package source

import (
	"slices"

	"github.com/okian/rcagrade/internal/domain/model"
)

// ColumnMap names the source column for each incident field.
type ColumnMap struct {
	ID               string `json:"col_id"`
	Summary          string `json:"col_summary"`
	Description      string `json:"col_description"`
	RootCause        string `json:"col_root_cause"`
	Resolution       string `json:"col_resolution"`
	PreventiveAction string `json:"col_preventive"`
}

// DefaultColumnMap matches the example incident export.
func DefaultColumnMap() ColumnMap {
	return ColumnMap{
		ID:               "issue_key",
		Summary:          "summary",
		Description:      "description",
		RootCause:        "root_cause",
		Resolution:       "resolution",
		PreventiveAction: "preventive_action",
	}
}

// Names returns the six column names in incident field order.
func (m ColumnMap) Names() []string {
	return []string{m.ID, m.Summary, m.Description, m.RootCause, m.Resolution, m.PreventiveAction}
}

// Validate checks every mapped column exists in t.
func (m ColumnMap) Validate(t *Table) error {
	var missing []string
	for _, name := range m.Names() {
		if !t.Has(name) && !slices.Contains(missing, name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &MappingError{Missing: missing, Available: slices.Clone(t.Columns)}
	}
	return nil
}

func (m ColumnMap) incident(t *Table, i int) model.Incident {
	return model.Incident{
		IncidentID:       t.Cell(i, m.ID),
		Summary:          t.Cell(i, m.Summary),
		Description:      t.Cell(i, m.Description),
		RootCause:        t.Cell(i, m.RootCause),
		Resolution:       t.Cell(i, m.Resolution),
		PreventiveAction: t.Cell(i, m.PreventiveAction),
	}
}

// Incidents maps every row of t. The mapping is checked before any row is read.
func (t *Table) Incidents(m ColumnMap) ([]model.Incident, error) {
	if err := m.Validate(t); err != nil {
		return nil, err
	}
	out := make([]model.Incident, t.Len())
	for i := range t.Rows {
		out[i] = m.incident(t, i)
	}
	return out, nil
}

// Find returns the first row whose id column equals id.
func (t *Table) Find(m ColumnMap, id string) (model.Incident, error) {
	if err := m.Validate(t); err != nil {
		return model.Incident{}, err
	}
	for i := range t.Rows {
		if t.Cell(i, m.ID) == id {
			return m.incident(t, i), nil
		}
	}
	return model.Incident{}, &NotFoundError{IncidentID: id}
}
