package llm

import (
	"errors"
	"fmt"
)

// Sentinel kinds for inference failures.
var (
	ErrTransport         = errors.New("inference transport failure")
	ErrMalformedResponse = errors.New("malformed model response")
)

// TransportError reports a network failure, timeout or non-success status
// from the inference service.
type TransportError struct {
	Op         string
	StatusCode int
	Timeout    bool
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s: timeout: %v", e.Op, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

// Unwrap exposes both the sentinel kind and the underlying cause.
func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// MalformedResponseError carries model output that could not be recovered as JSON.
type MalformedResponseError struct {
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%v: %v (raw %d bytes: %q)", ErrMalformedResponse, e.Err, len(e.Raw), preview(e.Raw))
}

func (e *MalformedResponseError) Unwrap() error { return ErrMalformedResponse }

const previewLen = 120

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewLen {
		return s
	}
	return string(r[:previewLen]) + "..."
}
