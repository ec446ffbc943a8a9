package batch

import (
	"errors"
	"fmt"
)

// ErrRowFailed marks the row failure that aborted a fail-fast run.
var ErrRowFailed = errors.New("batch row failed")

// RowError identifies the row that aborted a fail-fast run.
type RowError struct {
	Index      int
	IncidentID string
	Err        error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d (%s): %v", e.Index+1, e.IncidentID, e.Err)
}

// Unwrap exposes both the sentinel kind and the underlying cause.
func (e *RowError) Unwrap() []error {
	return []error{ErrRowFailed, e.Err}
}
