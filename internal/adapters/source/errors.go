package source

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel kinds for incident source failures.
var (
	ErrMapping  = errors.New("column mapping error")
	ErrNotFound = errors.New("incident not found")
	ErrNoHeader = errors.New("csv has no header row")
)

// MappingError lists configured columns absent from the source.
type MappingError struct {
	Missing   []string
	Available []string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("missing required columns: %s. available columns: %s",
		strings.Join(e.Missing, ", "), strings.Join(e.Available, ", "))
}

func (e *MappingError) Unwrap() error { return ErrMapping }

// NotFoundError reports an incident id with no matching row.
type NotFoundError struct {
	IncidentID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("incident %s not found", e.IncidentID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }
