package prompts

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/okian/rcagrade/internal/domain/model"
)

// Template names, also used as the pipeline operation names.
const (
	NameEvaluate = "evaluate"
	NameCritique = "critique"
	NameImprove  = "improve"
)

// Evaluation is the rubric prompt. Its slots are the six incident fields.
var Evaluation = MustParse(NameEvaluate, `You are a strict incident RCA reviewer for software/IT incidents.
Rate the RCA quality using the rubric below. Be consistent and conservative.

Context:
- Incident ID: {{incident_id}}
- Summary: {{summary}}
- Description: {{description}}
- Root Cause: {{root_cause}}
- Resolution/Fix: {{resolution}}
- Preventive Action: {{preventive_action}}

Rubric (0-20 each):
1) Clarity & structure: Is it readable, well structured, unambiguous?
2) Root cause depth: Does it identify the underlying cause (not just symptoms)?
3) Evidence & specificity: Facts, logs, timestamps, components, data vs vague claims.
4) Corrective action quality: Fix addresses root cause, verified, rollback/monitoring noted.
5) Preventive action strength: Prevent recurrence (tests, monitoring, process, automation).

Output MUST be valid JSON only with this schema:
{
  "scores": {
    "clarity": int,
    "depth": int,
    "evidence": int,
    "corrective": int,
    "preventive": int
  },
  "total": int,
  "strengths": [string, ...],
  "gaps": [string, ...],
  "improvements": [string, ...],
  "executive_summary": string
}

Rules:
- Each score is an integer 0..20.
- total is the sum (0..100).
- Keep executive_summary <= 60 words.
`)

// Critic asks the model to challenge an existing evaluation.
var Critic = MustParse(NameCritique, `You are the critic agent. Your job: find weak reasoning, missing info, and potential hallucinations.
Given the evaluation JSON and the original RCA text, list the top 5 risks/uncertainties and what evidence would reduce them.

RCA:
Root Cause: {{root_cause}}
Resolution/Fix: {{resolution}}
Preventive Action: {{preventive_action}}

Evaluation JSON:
{{evaluation_json}}

Output MUST be valid JSON only:
{
  "top_risks": [string, ...],
  "missing_evidence_requests": [string, ...],
  "confidence": "low" | "medium" | "high"
}
`)

// Improvement asks for a rewrite that marks gaps instead of inventing facts.
var Improvement = MustParse(NameImprove, `You are an improvement agent. Rewrite the RCA into a stronger version WITHOUT inventing facts.
If facts are missing, insert clearly marked placeholders like: "[NEEDED: log excerpt/timestamp]".

Input:
- Incident ID: {{incident_id}}
- Summary: {{summary}}
- Root Cause: {{root_cause}}
- Resolution/Fix: {{resolution}}
- Preventive Action: {{preventive_action}}

Output MUST be valid JSON only:
{
  "improved_root_cause": string,
  "improved_resolution": string,
  "improved_preventive_action": string,
  "notes": [string, ...]
}
`)

func init() { //nolint:gochecknoinits // template/value consistency check
	mustCover(Evaluation, incidentValues(model.Incident{}))
	mustCover(Critic, critiqueValues(model.Incident{}, nil))
	mustCover(Improvement, incidentValues(model.Incident{}))
}

// mustCover panics when t has a slot that values never fills, since Fill
// would silently render it empty.
func mustCover(t *Template, values map[string]string) {
	for _, slot := range t.Slots() {
		if _, ok := values[slot]; !ok {
			panic(fmt.Sprintf("prompt %s: slot %q is never filled", t.Name(), slot))
		}
	}
}

func incidentValues(inc model.Incident) map[string]string {
	return map[string]string{
		"incident_id":       inc.IncidentID,
		"summary":           inc.Summary,
		"description":       inc.Description,
		"root_cause":        inc.RootCause,
		"resolution":        inc.Resolution,
		"preventive_action": inc.PreventiveAction,
	}
}

func critiqueValues(inc model.Incident, evaluation *model.EvaluationResult) map[string]string {
	values := incidentValues(inc)
	values["evaluation_json"] = compactJSON(evaluation)
	return values
}

// Evaluate renders the evaluation prompt for inc.
func Evaluate(inc model.Incident) string {
	return Evaluation.Fill(incidentValues(inc))
}

// Critique renders the critic prompt for inc and a prior evaluation of it.
func Critique(inc model.Incident, evaluation *model.EvaluationResult) string {
	return Critic.Fill(critiqueValues(inc, evaluation))
}

// Improve renders the improvement prompt for inc.
func Improve(inc model.Incident) string {
	return Improvement.Fill(incidentValues(inc))
}

// compactJSON encodes v on one line without HTML escaping. Result types only
// hold strings, ints and slices of them, so encoding cannot fail.
func compactJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "{}"
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}
