package model

import (
	"errors"
	"fmt"
)

// Sentinel kinds for model errors.
var (
	ErrSchemaViolation = errors.New("schema violation")
)

// Schema names used in SchemaViolationError.
const (
	SchemaEvaluation  = "evaluation"
	SchemaCritique    = "critique"
	SchemaImprovement = "improvement"
)

// SchemaViolationError reports parsed model output that does not match the
// expected result shape.
type SchemaViolationError struct {
	Schema string
	Field  string
	Reason string
}

func (e *SchemaViolationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s: %s", ErrSchemaViolation, e.Schema, e.Reason)
	}
	return fmt.Sprintf("%s: %s.%s: %s", ErrSchemaViolation, e.Schema, e.Field, e.Reason)
}

func (e *SchemaViolationError) Unwrap() error { return ErrSchemaViolation }

func violation(schema, field, reason string, args ...any) error {
	return &SchemaViolationError{Schema: schema, Field: field, Reason: fmt.Sprintf(reason, args...)}
}
