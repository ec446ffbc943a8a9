package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Rubric bounds.
const (
	MaxSubScore          = 20
	MaxTotal             = 100
	MaxSummaryWords      = 60
	ExpectedCritiqueRisk = 5 // top_risks asked for; more is logged, not rejected
)

// Dimension is one of the five rubric dimensions.
type Dimension string

// Rubric dimensions in report order.
const (
	Clarity    Dimension = "clarity"
	Depth      Dimension = "depth"
	Evidence   Dimension = "evidence"
	Corrective Dimension = "corrective"
	Preventive Dimension = "preventive"
)

// Dimensions lists the rubric dimensions in report order.
var Dimensions = []Dimension{Clarity, Depth, Evidence, Corrective, Preventive}

// Scores maps each rubric dimension to a value in [0, 20].
type Scores map[Dimension]int

// Sum adds all sub-scores.
func (s Scores) Sum() int {
	total := 0
	for _, v := range s {
		total += v
	}
	return total
}

// EvaluationResult is the output of the Evaluate operation.
type EvaluationResult struct {
	Scores           Scores   `json:"scores"`
	Total            int      `json:"total"`
	Strengths        []string `json:"strengths"`
	Gaps             []string `json:"gaps"`
	Improvements     []string `json:"improvements"`
	ExecutiveSummary string   `json:"executive_summary"`
}

// SummaryWords counts the words of the executive summary.
func (r *EvaluationResult) SummaryWords() int {
	return len(strings.Fields(r.ExecutiveSummary))
}

// Confidence is the critic's confidence level.
type Confidence string

// Confidence levels.
const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Valid reports whether c is one of the enumerated levels.
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return true
	}
	return false
}

// CritiqueResult is the output of the Critique operation.
type CritiqueResult struct {
	TopRisks                []string   `json:"top_risks"`
	MissingEvidenceRequests []string   `json:"missing_evidence_requests"`
	Confidence              Confidence `json:"confidence"`
}

// ImprovementResult is the output of the Improve operation.
type ImprovementResult struct {
	ImprovedRootCause        string   `json:"improved_root_cause"`
	ImprovedResolution       string   `json:"improved_resolution"`
	ImprovedPreventiveAction string   `json:"improved_preventive_action"`
	Notes                    []string `json:"notes"`
}

// DecodeEvaluation strictly decodes raw model JSON into an EvaluationResult.
func DecodeEvaluation(raw []byte) (*EvaluationResult, error) {
	fields, err := object(SchemaEvaluation, raw)
	if err != nil {
		return nil, err
	}
	if err := requireKeys(SchemaEvaluation, fields,
		"scores", "total", "strengths", "gaps", "improvements", "executive_summary"); err != nil {
		return nil, err
	}

	res := &EvaluationResult{}
	if res.Scores, err = decodeScores(fields["scores"]); err != nil {
		return nil, err
	}
	if err := decodeField(SchemaEvaluation, "total", fields["total"], &res.Total); err != nil {
		return nil, err
	}
	if err := decodeStrings(SchemaEvaluation, fields, &res.Strengths, "strengths"); err != nil {
		return nil, err
	}
	if err := decodeStrings(SchemaEvaluation, fields, &res.Gaps, "gaps"); err != nil {
		return nil, err
	}
	if err := decodeStrings(SchemaEvaluation, fields, &res.Improvements, "improvements"); err != nil {
		return nil, err
	}
	if err := decodeField(SchemaEvaluation, "executive_summary", fields["executive_summary"], &res.ExecutiveSummary); err != nil {
		return nil, err
	}

	if res.Total < 0 || res.Total > MaxTotal {
		return nil, violation(SchemaEvaluation, "total", "%d outside [0, %d]", res.Total, MaxTotal)
	}
	if sum := res.Scores.Sum(); sum != res.Total {
		return nil, violation(SchemaEvaluation, "total", "%d does not equal sum of scores %d", res.Total, sum)
	}
	return res, nil
}

// DecodeCritique strictly decodes raw model JSON into a CritiqueResult.
func DecodeCritique(raw []byte) (*CritiqueResult, error) {
	fields, err := object(SchemaCritique, raw)
	if err != nil {
		return nil, err
	}
	if err := requireKeys(SchemaCritique, fields, "top_risks", "missing_evidence_requests", "confidence"); err != nil {
		return nil, err
	}

	res := &CritiqueResult{}
	if err := decodeStrings(SchemaCritique, fields, &res.TopRisks, "top_risks"); err != nil {
		return nil, err
	}
	if err := decodeStrings(SchemaCritique, fields, &res.MissingEvidenceRequests, "missing_evidence_requests"); err != nil {
		return nil, err
	}
	if err := decodeField(SchemaCritique, "confidence", fields["confidence"], &res.Confidence); err != nil {
		return nil, err
	}
	res.Confidence = Confidence(strings.ToLower(strings.TrimSpace(string(res.Confidence))))
	if !res.Confidence.Valid() {
		return nil, violation(SchemaCritique, "confidence", "%q is not one of low, medium, high", res.Confidence)
	}
	return res, nil
}

// DecodeImprovement strictly decodes raw model JSON into an ImprovementResult.
func DecodeImprovement(raw []byte) (*ImprovementResult, error) {
	fields, err := object(SchemaImprovement, raw)
	if err != nil {
		return nil, err
	}
	if err := requireKeys(SchemaImprovement, fields,
		"improved_root_cause", "improved_resolution", "improved_preventive_action", "notes"); err != nil {
		return nil, err
	}

	res := &ImprovementResult{}
	for name, dst := range map[string]*string{
		"improved_root_cause":        &res.ImprovedRootCause,
		"improved_resolution":        &res.ImprovedResolution,
		"improved_preventive_action": &res.ImprovedPreventiveAction,
	} {
		if err := decodeField(SchemaImprovement, name, fields[name], dst); err != nil {
			return nil, err
		}
	}
	if err := decodeStrings(SchemaImprovement, fields, &res.Notes, "notes"); err != nil {
		return nil, err
	}
	return res, nil
}

func object(schema string, raw []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, violation(schema, "", "expected a JSON object")
	}
	return fields, nil
}

func requireKeys(schema string, fields map[string]json.RawMessage, keys ...string) error {
	for _, k := range keys {
		v, ok := fields[k]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return violation(schema, k, "missing")
		}
	}
	return nil
}

func decodeField(schema, name string, raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return violation(schema, name, "expected %s, got %s", typeErr.Type, typeErr.Value)
		}
		return violation(schema, name, "%v", err)
	}
	return nil
}

func decodeStrings(schema string, fields map[string]json.RawMessage, dst *[]string, name string) error {
	if err := decodeField(schema, name, fields[name], dst); err != nil {
		return err
	}
	if *dst == nil {
		*dst = []string{}
	}
	return nil
}

func decodeScores(raw json.RawMessage) (Scores, error) {
	var byName map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byName); err != nil || byName == nil {
		return nil, violation(SchemaEvaluation, "scores", "expected an object of %d integers", len(Dimensions))
	}
	if len(byName) != len(Dimensions) {
		return nil, violation(SchemaEvaluation, "scores", "expected exactly %d keys, got %d", len(Dimensions), len(byName))
	}

	scores := make(Scores, len(Dimensions))
	for _, d := range Dimensions {
		v, ok := byName[string(d)]
		if !ok {
			return nil, violation(SchemaEvaluation, "scores."+string(d), "missing")
		}
		var n int
		if err := decodeField(SchemaEvaluation, "scores."+string(d), v, &n); err != nil {
			return nil, err
		}
		if n < 0 || n > MaxSubScore {
			return nil, violation(SchemaEvaluation, "scores."+string(d), "%d outside [0, %d]", n, MaxSubScore)
		}
		scores[d] = n
	}
	return scores, nil
}

// String renders the scores in rubric order, e.g. "clarity=12 depth=9 ...".
func (s Scores) String() string {
	parts := make([]string, 0, len(Dimensions))
	for _, d := range Dimensions {
		parts = append(parts, fmt.Sprintf("%s=%d", d, s[d]))
	}
	return strings.Join(parts, " ")
}
