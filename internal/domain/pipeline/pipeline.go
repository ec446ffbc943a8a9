// Package pipeline composes prompt rendering, a model call and strict result
// decoding into the evaluate, critique and improve operations.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/okian/rcagrade/internal/adapters/llm"
	"github.com/okian/rcagrade/internal/domain/model"
	"github.com/okian/rcagrade/internal/domain/prompts"
	"github.com/okian/rcagrade/pkg/logger"
	"github.com/okian/rcagrade/pkg/metrics"
)

// Generator returns the JSON a model produced for a prompt.
type Generator interface {
	GenerateJSON(ctx context.Context, prompt string, temperature float64, timeout time.Duration) (json.RawMessage, error)
}

// Pipeline runs single model round trips. It holds no per-incident state, so
// every call is fresh and the caller owns the results.
type Pipeline struct {
	gen         Generator
	temperature float64
	timeout     time.Duration
	logger      logger.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTemperature sets the sampling temperature for every call.
func WithTemperature(t float64) Option {
	return func(p *Pipeline) {
		if t >= 0 {
			p.temperature = t
		}
	}
}

// WithTimeout bounds each model call.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Pipeline over gen.
func New(gen Generator, opts ...Option) *Pipeline {
	p := &Pipeline{
		gen:         gen,
		temperature: llm.DefaultTemperature,
		timeout:     llm.DefaultTimeout,
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Evaluate scores inc against the rubric.
func (p *Pipeline) Evaluate(ctx context.Context, inc model.Incident) (*model.EvaluationResult, error) {
	var result *model.EvaluationResult
	err := p.roundTrip(ctx, prompts.NameEvaluate, inc.IncidentID, prompts.Evaluate(inc), func(raw json.RawMessage) error {
		var err error
		result, err = model.DecodeEvaluation(raw)
		return err
	})
	if err != nil {
		return nil, err
	}

	if words := result.SummaryWords(); words > model.MaxSummaryWords {
		p.logger.Warn(ctx, "executive summary exceeds word cap",
			logger.String("incident_id", inc.IncidentID),
			logger.Int("words", words),
			logger.Int("max_words", model.MaxSummaryWords),
		)
	}
	p.logger.Debug(ctx, "incident evaluated",
		logger.String("incident_id", inc.IncidentID),
		logger.Int("total", result.Total),
		logger.String("scores", result.Scores.String()),
	)
	return result, nil
}

// Critique reviews a prior evaluation of inc. The pairing of evaluation and
// incident is not verified.
func (p *Pipeline) Critique(ctx context.Context, inc model.Incident, evaluation *model.EvaluationResult) (*model.CritiqueResult, error) {
	var result *model.CritiqueResult
	err := p.roundTrip(ctx, prompts.NameCritique, inc.IncidentID, prompts.Critique(inc, evaluation), func(raw json.RawMessage) error {
		var err error
		result, err = model.DecodeCritique(raw)
		return err
	})
	if err != nil {
		return nil, err
	}

	if n := len(result.TopRisks); n > model.ExpectedCritiqueRisk {
		p.logger.Warn(ctx, "critique lists more risks than asked for",
			logger.String("incident_id", inc.IncidentID),
			logger.Int("risks", n),
			logger.Int("max_risks", model.ExpectedCritiqueRisk),
		)
	}
	return result, nil
}

// Improve rewrites the RCA of inc. It does not depend on Evaluate.
func (p *Pipeline) Improve(ctx context.Context, inc model.Incident) (*model.ImprovementResult, error) {
	var result *model.ImprovementResult
	err := p.roundTrip(ctx, prompts.NameImprove, inc.IncidentID, prompts.Improve(inc), func(raw json.RawMessage) error {
		var err error
		result, err = model.DecodeImprovement(raw)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (p *Pipeline) roundTrip(ctx context.Context, op, incidentID, prompt string, decode func(json.RawMessage) error) error {
	start := time.Now()

	raw, err := p.gen.GenerateJSON(ctx, prompt, p.temperature, p.timeout)
	if err == nil {
		err = decode(raw)
	}

	metrics.RecordLLMCall(op, outcome(err), float64(time.Since(start).Milliseconds()))
	if err != nil {
		var sv *model.SchemaViolationError
		if errors.As(err, &sv) {
			metrics.RecordSchemaViolation(sv.Schema)
		}
		p.logger.Debug(ctx, "model round trip failed",
			logger.String("operation", op),
			logger.String("incident_id", incidentID),
			logger.Error(err),
		)
		return fmt.Errorf("%s %s: %w", op, incidentID, err)
	}
	return nil
}

// outcome maps an error to its metric label.
func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, llm.ErrTransport):
		return metrics.OutcomeTransport
	case errors.Is(err, llm.ErrMalformedResponse):
		return metrics.OutcomeMalformed
	case errors.Is(err, model.ErrSchemaViolation):
		return metrics.OutcomeSchema
	default:
		return "error"
	}
}
