// Command rca-server exposes incident lookup and the evaluate, critique and
// improve tools over HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/rcagrade/internal/adapters/http/api"
	"github.com/okian/rcagrade/internal/adapters/http/swagger"
	"github.com/okian/rcagrade/internal/adapters/source"
	app "github.com/okian/rcagrade/internal/app"
	"github.com/okian/rcagrade/internal/config"
	"github.com/okian/rcagrade/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second

	// writeSlack is added on top of the model timeout so a slow model call
	// still gets its error envelope written.
	writeSlack = 15 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		os.Stderr.WriteString("rca-server: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc := app.New(serviceOptions(cfg, log)...)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	handler, err := newHandler(ctx, svc, log)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      cfg.Timeout() + writeSlack,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("model", cfg.Model),
			logger.String("data_path", cfg.DataPath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err, ok := <-serveErr:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
		return err
	}

	log.Info(ctx, "server stopped")
	return nil
}

// serviceOptions maps configuration onto service options.
func serviceOptions(cfg *config.Config, log logger.Logger) []app.Option {
	return []app.Option{
		app.WithLogger(log),
		app.WithModel(cfg.Model),
		app.WithHost(cfg.Host),
		app.WithTemperature(cfg.Temperature),
		app.WithTimeout(cfg.Timeout()),
		app.WithDataPath(cfg.DataPath),
		app.WithColumnMap(columnMap(cfg)),
		app.WithListLimit(cfg.ListLimit),
		app.WithSessionTTL(cfg.SessionTTL()),
	}
}

func columnMap(cfg *config.Config) source.ColumnMap {
	return source.ColumnMap{
		ID:               cfg.ColID,
		Summary:          cfg.ColSummary,
		Description:      cfg.ColDescription,
		RootCause:        cfg.ColRootCause,
		Resolution:       cfg.ColResolution,
		PreventiveAction: cfg.ColPreventive,
	}
}

// newHandler registers the docs and tool routes on a fresh mux.
func newHandler(ctx context.Context, svc *app.Service, log logger.Logger) (http.Handler, error) {
	mux := http.NewServeMux()
	if err := swagger.Register(ctx, mux); err != nil {
		return nil, err
	}
	if err := api.NewServer(svc, api.WithLogger(log.Named("http"))).Register(ctx, mux); err != nil {
		return nil, err
	}
	return mux, nil
}
