package session

import "errors"

// Sentinel kinds for session transitions.
var (
	ErrNoEvaluation    = errors.New("critique requires an evaluation")
	ErrStaleEvaluation = errors.New("evaluation changed while critique was running")
	ErrNotFound        = errors.New("session not found")

	ErrIncidentMismatch = errors.New("incident differs from the one that was evaluated")
)
