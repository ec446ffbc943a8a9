// Command rca-batch scores every incident of a CSV file and writes a results
// table and a markdown report.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/okian/rcagrade/internal/adapters/export"
	"github.com/okian/rcagrade/internal/adapters/llm"
	"github.com/okian/rcagrade/internal/adapters/source"
	"github.com/okian/rcagrade/internal/config"
	"github.com/okian/rcagrade/internal/domain/batch"
	"github.com/okian/rcagrade/internal/domain/pipeline"
	"github.com/okian/rcagrade/pkg/logger"
)

// Process exit codes.
const (
	exitOK       = 0
	exitFailure  = 1
	exitNotFound = 2
)

// errInputNotFound marks a missing input CSV, the one failure with its own
// exit code.
var errInputNotFound = errors.New("input not found")

// options holds the parsed flags.
type options struct {
	csv         string
	outdir      string
	model       string
	host        string
	columns     source.ColumnMap
	limit       int
	failFast    bool
	concurrency int
	maxRetries  int
	timeout     time.Duration
	temperature float64
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the command line and maps the outcome to an exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return exitFailure
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithWriter(stderr)); err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return exitFailure
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		_ = logger.SetLevelString("info")
	}

	cmd := newRootCmd(cfg, stdout, stderr)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return exitCode(err)
	}
	return exitOK
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errInputNotFound):
		return exitNotFound
	default:
		return exitFailure
	}
}

// newRootCmd builds the command with flag defaults taken from cfg.
func newRootCmd(cfg *config.Config, stdout, stderr io.Writer) *cobra.Command {
	opts := &options{temperature: cfg.Temperature}

	cmd := &cobra.Command{
		Use:   "rca-batch --csv incidents.csv",
		Short: "Score incident RCAs in bulk with a local model",
		Long: `rca-batch reads incidents from a CSV file, asks the model to score each
root cause analysis against a five-part rubric, and writes results.csv and
report.md to the output directory.

A row that fails is recorded with an "ERROR:" summary and the run continues,
unless --fail-fast is set.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBatch(cmd.Context(), opts, stdout, stderr)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.csv, "csv", "", "input CSV file")
	f.StringVar(&opts.outdir, "outdir", "out", "directory for results.csv and report.md")
	f.StringVar(&opts.model, "model", cfg.Model, "model name")
	f.StringVar(&opts.host, "host", cfg.Host, "inference service base URL")
	f.StringVar(&opts.columns.ID, "col-id", cfg.ColID, "incident id column")
	f.StringVar(&opts.columns.Summary, "col-summary", cfg.ColSummary, "summary column")
	f.StringVar(&opts.columns.Description, "col-description", cfg.ColDescription, "description column")
	f.StringVar(&opts.columns.RootCause, "col-root-cause", cfg.ColRootCause, "root cause column")
	f.StringVar(&opts.columns.Resolution, "col-resolution", cfg.ColResolution, "resolution column")
	f.StringVar(&opts.columns.PreventiveAction, "col-preventive", cfg.ColPreventive, "preventive action column")
	f.IntVar(&opts.limit, "limit", 0, "process only the first N rows (0 = all)")
	f.BoolVar(&opts.failFast, "fail-fast", false, "stop at the first failed row")
	f.IntVar(&opts.concurrency, "concurrency", cfg.Concurrency, "rows evaluated at once")
	f.IntVar(&opts.maxRetries, "max-retries", cfg.MaxRetries, "retries per row after a transport failure")
	f.DurationVar(&opts.timeout, "timeout", cfg.Timeout(), "timeout of a single model call")
	_ = cmd.MarkFlagRequired("csv")

	return cmd
}

func runBatch(ctx context.Context, opts *options, stdout, stderr io.Writer) error {
	if opts.limit < 0 {
		return fmt.Errorf("--limit cannot be negative: %d", opts.limit)
	}
	log := logger.Named("batch")

	table, err := source.LoadFile(opts.csv)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: CSV not found: %s: %w", errInputNotFound, opts.csv, err)
		}
		return err
	}
	incidents, err := table.Incidents(opts.columns)
	if err != nil {
		return err
	}

	client := llm.New(
		llm.WithModel(opts.model),
		llm.WithHost(opts.host),
		llm.WithLogger(logger.Named("llm")),
	)
	pipe := pipeline.New(client,
		pipeline.WithTemperature(opts.temperature),
		pipeline.WithTimeout(opts.timeout),
		pipeline.WithLogger(logger.Named("pipeline")),
	)

	retry := batch.DefaultRetryConfig()
	retry.MaxRetries = opts.maxRetries
	runner := batch.NewRunner(pipe,
		batch.WithConcurrency(opts.concurrency),
		batch.WithFailFast(opts.failFast),
		batch.WithLimit(opts.limit),
		batch.WithRetry(retry),
		batch.WithLogger(log),
		batch.WithProgress(func(_ int, row batch.Row, err error) {
			if err != nil {
				fmt.Fprintf(stderr, "[ERR] %s: %v\n", row.IncidentID, err)
				return
			}
			fmt.Fprintf(stdout, "[OK] %s -> %d\n", row.IncidentID, *row.Total)
		}),
	)

	log.Info(ctx, "batch starting",
		logger.String("input", opts.csv),
		logger.Int("rows", len(incidents)),
		logger.String("model", client.Model()),
		logger.Int("concurrency", opts.concurrency),
		logger.Bool("fail_fast", opts.failFast),
	)
	report, err := runner.Run(ctx, incidents)
	if err != nil {
		return err
	}

	meta := export.Metadata{
		Input: opts.csv,
		Model: client.Model(),
		Host:  client.Host(),
		RunID: uuid.NewString(),
	}
	out, err := export.WriteArtifacts(opts.outdir, meta, report)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "\nWrote: %s\n", out.ResultsPath)
	fmt.Fprintf(stdout, "Wrote: %s\n", out.ReportPath)
	return nil
}
