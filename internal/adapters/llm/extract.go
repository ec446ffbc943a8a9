package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

var (
	errNoObject     = errors.New("no JSON object found")
	errInvalidInner = errors.New("text between outermost braces is not valid JSON")
)

// ExtractJSON parses text as JSON. When text is not JSON as a whole, the span
// from the first '{' to the last '}' is tried instead. The second return value
// reports whether that fallback was used.
func ExtractJSON(text string) (json.RawMessage, bool, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), false, nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return nil, true, &MalformedResponseError{Raw: text, Err: errNoObject}
	}

	candidate := text[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return nil, true, &MalformedResponseError{Raw: text, Err: errInvalidInner}
	}
	return json.RawMessage(candidate), true, nil
}
