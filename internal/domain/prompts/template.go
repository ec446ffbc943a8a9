// Package prompts holds the prompt templates sent to the inference service.
//
// Templates mark slots as {{name}}. Only the template text is scanned for
// slots; filled values are copied verbatim, so incident text containing
// braces can never be mistaken for a slot.
package prompts

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// Template is a parsed prompt with named slots.
type Template struct {
	name     string
	segments []segment
	slots    map[string]struct{}
}

// segment is either literal text or a slot reference.
type segment struct {
	text string
	slot string
}

// Parse splits text into literal segments and {{slot}} references.
func Parse(name, text string) (*Template, error) {
	t := &Template{name: name, slots: make(map[string]struct{})}

	for len(text) > 0 {
		start := strings.Index(text, "{{")
		if start == -1 {
			t.segments = append(t.segments, segment{text: text})
			break
		}
		if start > 0 {
			t.segments = append(t.segments, segment{text: text[:start]})
		}

		end := strings.Index(text[start:], "}}")
		if end == -1 {
			return nil, fmt.Errorf("template %s: %w", name, errUnclosedSlot)
		}
		end += start + 2

		slot := strings.TrimSpace(text[start+2 : end-2])
		if !isValidIdentifier(slot) {
			return nil, fmt.Errorf("template %s: invalid slot identifier %q", name, slot)
		}
		t.segments = append(t.segments, segment{slot: slot})
		t.slots[slot] = struct{}{}

		text = text[end:]
	}
	return t, nil
}

// MustParse is Parse for package-level templates known to be valid.
func MustParse(name, text string) *Template {
	t, err := Parse(name, text)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the template name.
func (t *Template) Name() string { return t.name }

// Slots returns the slot names in sorted order.
func (t *Template) Slots() []string {
	names := make([]string, 0, len(t.slots))
	for name := range t.slots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fill renders the template. Slots absent from values render as the empty
// string, so Fill never fails.
func (t *Template) Fill(values map[string]string) string {
	var sb strings.Builder
	for _, seg := range t.segments {
		if seg.slot == "" {
			sb.WriteString(seg.text)
			continue
		}
		sb.WriteString(values[seg.slot])
	}
	return sb.String()
}

var errUnclosedSlot = errors.New("unclosed slot: missing '}}'")

// isValidIdentifier requires a leading letter followed by letters, digits or underscores.
func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 && !unicode.IsLetter(r) {
			return false
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}
