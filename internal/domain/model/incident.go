// Package model contains domain models passed between layers.
package model

// Incident is one RCA record. All six fields are always present; an empty
// string means the source had no value.
type Incident struct {
	IncidentID       string `json:"incident_id"`
	Summary          string `json:"summary"`
	Description      string `json:"description"`
	RootCause        string `json:"root_cause"`
	Resolution       string `json:"resolution"`
	PreventiveAction string `json:"preventive_action"`
}
