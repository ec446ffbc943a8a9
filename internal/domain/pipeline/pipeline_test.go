package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/rcagrade/internal/adapters/llm"
	"github.com/okian/rcagrade/internal/domain/model"
	"github.com/okian/rcagrade/pkg/logger"
)

const validEvaluation = `{
  "scores": {"clarity": 15, "depth": 12, "evidence": 10, "corrective": 14, "preventive": 13},
  "total": 64,
  "strengths": ["clear timeline"],
  "gaps": ["no logs"],
  "improvements": ["attach logs"],
  "executive_summary": "Adequate RCA."
}`

// fakeGenerator replays canned responses and records prompts.
type fakeGenerator struct {
	responses []string
	errs      []error
	prompts   []string
	temps     []float64
	timeouts  []time.Duration
}

func (f *fakeGenerator) GenerateJSON(_ context.Context, prompt string, temperature float64, timeout time.Duration) (json.RawMessage, error) {
	i := len(f.prompts)
	f.prompts = append(f.prompts, prompt)
	f.temps = append(f.temps, temperature)
	f.timeouts = append(f.timeouts, timeout)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return json.RawMessage(f.responses[i]), nil
}

func incident() model.Incident {
	return model.Incident{
		IncidentID:       "INC-7",
		Summary:          "Disk full on db-1",
		Description:      "writes failed",
		RootCause:        "log rotation disabled",
		Resolution:       "re-enabled rotation",
		PreventiveAction: "disk alerts",
	}
}

func TestEvaluate(t *testing.T) {
	Convey("Given a pipeline over a fake model", t, func() {
		ctx := context.Background()

		Convey("A valid response is decoded", func() {
			gen := &fakeGenerator{responses: []string{validEvaluation}}
			p := New(gen, WithTemperature(0.5), WithTimeout(3*time.Second))

			res, err := p.Evaluate(ctx, incident())
			So(err, ShouldBeNil)
			So(res.Total, ShouldEqual, 64)
			So(res.Scores[model.Depth], ShouldEqual, 12)
			So(gen.prompts[0], ShouldContainSubstring, "Incident ID: INC-7")
			So(gen.temps[0], ShouldEqual, 0.5)
			So(gen.timeouts[0], ShouldEqual, 3*time.Second)
		})

		Convey("Defaults are low temperature and a long timeout", func() {
			gen := &fakeGenerator{responses: []string{validEvaluation}}
			_, err := New(gen).Evaluate(ctx, incident())
			So(err, ShouldBeNil)
			So(gen.temps[0], ShouldEqual, llm.DefaultTemperature)
			So(gen.timeouts[0], ShouldEqual, llm.DefaultTimeout)
		})

		Convey("A total that disagrees with the scores is a schema violation", func() {
			bad := strings.Replace(validEvaluation, `"total": 64`, `"total": 70`, 1)
			_, err := New(&fakeGenerator{responses: []string{bad}}).Evaluate(ctx, incident())
			So(errors.Is(err, model.ErrSchemaViolation), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "INC-7")
		})

		Convey("Transport failures propagate unchanged in kind", func() {
			gen := &fakeGenerator{errs: []error{&llm.TransportError{Op: "POST", StatusCode: 500, Err: errors.New("boom")}}}
			_, err := New(gen).Evaluate(ctx, incident())
			So(errors.Is(err, llm.ErrTransport), ShouldBeTrue)

			var te *llm.TransportError
			So(errors.As(err, &te), ShouldBeTrue)
			So(te.StatusCode, ShouldEqual, 500)
		})

		Convey("An overlong summary is accepted", func() {
			long := strings.Repeat("word ", 80)
			resp := strings.Replace(validEvaluation, "Adequate RCA.", long, 1)
			res, err := New(&fakeGenerator{responses: []string{resp}}).Evaluate(ctx, incident())
			So(err, ShouldBeNil)
			So(res.SummaryWords(), ShouldEqual, 80)
		})

		Convey("Every call is a fresh round trip", func() {
			gen := &fakeGenerator{responses: []string{validEvaluation, validEvaluation}}
			p := New(gen)
			_, _ = p.Evaluate(ctx, incident())
			_, _ = p.Evaluate(ctx, incident())
			So(gen.prompts, ShouldHaveLength, 2)
			So(gen.prompts[0], ShouldEqual, gen.prompts[1])
		})
	})
}

func TestCritique(t *testing.T) {
	Convey("Given an evaluation", t, func() {
		ctx := context.Background()
		eval, err := model.DecodeEvaluation([]byte(validEvaluation))
		So(err, ShouldBeNil)

		Convey("The critique prompt embeds it and the response is decoded", func() {
			gen := &fakeGenerator{responses: []string{
				`{"top_risks": ["a"], "missing_evidence_requests": ["b"], "confidence": "Medium"}`,
			}}
			res, err := New(gen).Critique(ctx, incident(), eval)
			So(err, ShouldBeNil)
			So(res.Confidence, ShouldEqual, model.ConfidenceMedium)
			So(gen.prompts[0], ShouldContainSubstring, `"total":64`)
		})

		Convey("Extra risks are kept and logged", func() {
			var buf bytes.Buffer
			So(logger.Init(logger.WithWriter(&buf)), ShouldBeNil)
			gen := &fakeGenerator{responses: []string{
				`{"top_risks": ["1","2","3","4","5","6"], "missing_evidence_requests": [], "confidence": "low"}`,
			}}
			res, err := New(gen, WithLogger(logger.Get())).Critique(ctx, incident(), eval)
			So(err, ShouldBeNil)
			So(res.TopRisks, ShouldHaveLength, 6)
			So(buf.String(), ShouldContainSubstring, "critique lists more risks than asked for")
			So(buf.String(), ShouldContainSubstring, "risks=6")
		})

		Convey("Five risks log nothing", func() {
			var buf bytes.Buffer
			So(logger.Init(logger.WithWriter(&buf)), ShouldBeNil)
			gen := &fakeGenerator{responses: []string{
				`{"top_risks": ["1","2","3","4","5"], "missing_evidence_requests": [], "confidence": "low"}`,
			}}
			_, err := New(gen, WithLogger(logger.Get())).Critique(ctx, incident(), eval)
			So(err, ShouldBeNil)
			So(buf.String(), ShouldNotContainSubstring, "more risks")
		})

		Convey("An unknown confidence is a schema violation", func() {
			gen := &fakeGenerator{responses: []string{
				`{"top_risks": [], "missing_evidence_requests": [], "confidence": "certain"}`,
			}}
			_, err := New(gen).Critique(ctx, incident(), eval)
			So(errors.Is(err, model.ErrSchemaViolation), ShouldBeTrue)
		})
	})
}

func TestImprove(t *testing.T) {
	Convey("Improve works without any prior evaluation", t, func() {
		gen := &fakeGenerator{responses: []string{`{
			"improved_root_cause": "Rotation was disabled [NEEDED: change ticket]",
			"improved_resolution": "Re-enabled",
			"improved_preventive_action": "Alert at 80%",
			"notes": []
		}`}}
		res, err := New(gen).Improve(context.Background(), incident())
		So(err, ShouldBeNil)
		So(res.ImprovedRootCause, ShouldContainSubstring, "[NEEDED:")
		So(res.Notes, ShouldBeEmpty)
		So(gen.prompts, ShouldHaveLength, 1)
	})

	Convey("Malformed output is reported", t, func() {
		gen := &fakeGenerator{errs: []error{&llm.MalformedResponseError{Raw: "nope", Err: errors.New("no object")}}}
		_, err := New(gen).Improve(context.Background(), incident())
		So(errors.Is(err, llm.ErrMalformedResponse), ShouldBeTrue)
	})
}

func TestOutcome(t *testing.T) {
	Convey("Errors map to metric outcomes", t, func() {
		So(outcome(nil), ShouldEqual, "ok")
		So(outcome(&llm.TransportError{Err: errors.New("x")}), ShouldEqual, "transport_error")
		So(outcome(&llm.MalformedResponseError{Err: errors.New("x")}), ShouldEqual, "malformed_response")
		So(outcome(&model.SchemaViolationError{}), ShouldEqual, "schema_violation")
		So(outcome(errors.New("other")), ShouldEqual, "error")
	})
}
