// Package batch evaluates a sequence of incidents with per-row failure
// isolation and aggregates the results.
package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/rcagrade/internal/domain/model"
	"github.com/okian/rcagrade/pkg/logger"
	"github.com/okian/rcagrade/pkg/metrics"
)

// ErrorPrefix starts the executive summary of a failed row.
const ErrorPrefix = "ERROR: "

// Evaluator scores one incident.
type Evaluator interface {
	Evaluate(ctx context.Context, inc model.Incident) (*model.EvaluationResult, error)
}

// Row is one line of the results table. Numeric fields are nil for failed rows.
type Row struct {
	IncidentID       string `json:"incident_id"`
	Summary          string `json:"summary"`
	Total            *int   `json:"total"`
	Clarity          *int   `json:"clarity"`
	Depth            *int   `json:"depth"`
	Evidence         *int   `json:"evidence"`
	Corrective       *int   `json:"corrective"`
	Preventive       *int   `json:"preventive"`
	ExecutiveSummary string `json:"executive_summary"`
}

// Valid reports whether the row carries a score.
func (r Row) Valid() bool { return r.Total != nil }

func successRow(inc model.Incident, res *model.EvaluationResult) Row {
	score := func(d model.Dimension) *int {
		v := res.Scores[d]
		return &v
	}
	total := res.Total
	return Row{
		IncidentID:       inc.IncidentID,
		Summary:          inc.Summary,
		Total:            &total,
		Clarity:          score(model.Clarity),
		Depth:            score(model.Depth),
		Evidence:         score(model.Evidence),
		Corrective:       score(model.Corrective),
		Preventive:       score(model.Preventive),
		ExecutiveSummary: res.ExecutiveSummary,
	}
}

func failedRow(inc model.Incident, err error) Row {
	return Row{
		IncidentID:       inc.IncidentID,
		Summary:          inc.Summary,
		ExecutiveSummary: ErrorPrefix + err.Error(),
	}
}

// Runner applies an Evaluator across incidents.
type Runner struct {
	eval        Evaluator
	concurrency int
	failFast    bool
	limit       int
	retry       RetryConfig
	progress    ProgressFunc
	progressMu  sync.Mutex
	logger      logger.Logger
	now         func() time.Time
}

// ProgressFunc observes each finished row. err is nil for a valid row.
// Calls never overlap, but with concurrency above 1 they arrive in
// completion order rather than input order.
type ProgressFunc func(index int, row Row, err error)

// Option configures a Runner.
type Option func(*Runner)

// WithConcurrency sets how many rows are evaluated at once. The default of 1
// processes rows strictly one after another.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithFailFast aborts the run on the first failed row.
func WithFailFast(enabled bool) Option {
	return func(r *Runner) {
		r.failFast = enabled
	}
}

// WithLimit truncates the input to its first n incidents. Zero means all.
func WithLimit(n int) Option {
	return func(r *Runner) {
		if n >= 0 {
			r.limit = n
		}
	}
}

// WithRetry sets the transport retry policy.
func WithRetry(cfg RetryConfig) Option {
	return func(r *Runner) {
		if cfg.Validate() == nil {
			r.retry = cfg
		}
	}
}

// WithProgress registers fn to be told about every finished row.
func WithProgress(fn ProgressFunc) Option {
	return func(r *Runner) {
		r.progress = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides the time source for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRunner creates a Runner.
func NewRunner(eval Evaluator, opts ...Option) *Runner {
	r := &Runner{
		eval:        eval,
		concurrency: 1,
		retry:       DefaultRetryConfig(),
		logger:      logger.Nop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run evaluates incidents and aggregates the rows. Rows keep input order and
// duplicates are evaluated independently. A failed row becomes an error row
// unless fail-fast is set, in which case Run returns a *RowError and no report.
func (r *Runner) Run(ctx context.Context, incidents []model.Incident) (*Report, error) {
	if r.limit > 0 && len(incidents) > r.limit {
		incidents = incidents[:r.limit]
	}

	started := r.now()
	rows := make([]Row, len(incidents))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, inc := range incidents {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// A fail-fast failure may land while this row waited for a slot.
			if gctx.Err() != nil {
				return nil
			}
			row, err := r.evaluateRow(gctx, i, inc)
			rows[i] = row
			r.report(i, row, err)
			if err != nil && r.failFast {
				return &RowError{Index: i, IncidentID: inc.IncidentID, Err: err}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		r.logger.Error(ctx, "batch aborted", logger.Error(err))
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := Summarize(rows)
	report.StartedAt = started
	report.FinishedAt = r.now()

	metrics.RecordBatchRun(report.FinishedAt.Sub(started).Seconds(), report.Average)
	r.logger.Info(ctx, "batch complete",
		logger.Int("rows", len(rows)),
		logger.Int("valid", report.ValidCount),
		logger.Int("failed", report.FailedCount),
		logger.Float64("average", report.Average),
		logger.Float64("median", report.Median),
	)
	return report, nil
}

func (r *Runner) report(index int, row Row, err error) {
	if r.progress == nil {
		return
	}
	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	r.progress(index, row, err)
}

func (r *Runner) evaluateRow(ctx context.Context, index int, inc model.Incident) (Row, error) {
	res, err := withRetry(ctx, r.retry, r.logger, inc.IncidentID, func() (*model.EvaluationResult, error) {
		return r.eval.Evaluate(ctx, inc)
	})
	if err != nil {
		metrics.RecordBatchRow(metrics.RowFailed)
		if !errors.Is(err, context.Canceled) {
			metrics.RecordError("batch", "row")
		}
		r.logger.Error(ctx, "row failed",
			logger.Int("row", index+1),
			logger.String("incident_id", inc.IncidentID),
			logger.Error(err),
		)
		return failedRow(inc, err), err
	}

	metrics.RecordBatchRow(metrics.RowValid)
	r.logger.Info(ctx, "row evaluated",
		logger.Int("row", index+1),
		logger.String("incident_id", inc.IncidentID),
		logger.Int("total", res.Total),
	)
	return successRow(inc, res), nil
}
