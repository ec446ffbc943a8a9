// Package service wires the incident source, the model pipeline and the
// session store into the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/okian/rcagrade/internal/adapters/llm"
	"github.com/okian/rcagrade/internal/adapters/repository"
	"github.com/okian/rcagrade/internal/adapters/source"
	"github.com/okian/rcagrade/internal/domain/model"
	"github.com/okian/rcagrade/internal/domain/pipeline"
	"github.com/okian/rcagrade/internal/domain/session"
	"github.com/okian/rcagrade/pkg/logger"
)

// ErrNotStarted is returned by session operations before Start.
var ErrNotStarted = errors.New("service not started")

// Service implements the API dependencies for the incident tool server.
type Service struct {
	mu sync.RWMutex

	// Core components
	generator pipeline.Generator
	pipeline  *pipeline.Pipeline
	catalog   *source.Catalog
	sessions  *repository.SessionStore
	manager   *session.Manager

	// Configuration
	model       string
	host        string
	temperature float64
	timeout     time.Duration
	dataPath    string
	columns     source.ColumnMap
	listLimit   int
	sessionTTL  time.Duration
	httpClient  *http.Client

	// State
	started   bool
	startedAt time.Time

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithModel sets the model name.
func WithModel(model string) Option {
	return func(s *Service) {
		if model != "" {
			s.model = model
		}
	}
}

// WithHost sets the inference service base URL.
func WithHost(host string) Option {
	return func(s *Service) {
		if host != "" {
			s.host = host
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(s *Service) {
		if t >= 0 {
			s.temperature = t
		}
	}
}

// WithTimeout bounds each model call.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithDataPath sets the incident CSV path.
func WithDataPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.dataPath = path
		}
	}
}

// WithColumnMap sets the default column mapping.
func WithColumnMap(m source.ColumnMap) Option {
	return func(s *Service) {
		s.columns = m
	}
}

// WithListLimit sets the default incident listing size.
func WithListLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.listLimit = n
		}
	}
}

// WithSessionTTL drops sessions idle longer than ttl. Zero keeps them.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl >= 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithHTTPClient sets the HTTP client used to reach the inference service.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Service) {
		s.httpClient = hc
	}
}

// WithGenerator replaces the inference client entirely.
func WithGenerator(g pipeline.Generator) Option {
	return func(s *Service) {
		s.generator = g
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Service with the given options.
func New(opts ...Option) *Service {
	s := &Service{
		model:       llm.DefaultModel,
		host:        llm.DefaultHost,
		temperature: llm.DefaultTemperature,
		timeout:     llm.DefaultTimeout,
		dataPath:    "./data/example_incidents.csv",
		columns:     source.DefaultColumnMap(),
		listLimit:   20,
		sessionTTL:  time.Hour,
		logger:      nil, // replaced in Start
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start builds the components. Calling it twice is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting rca service...")

	if s.generator == nil {
		s.generator = llm.New(
			llm.WithModel(s.model),
			llm.WithHost(s.host),
			llm.WithHTTPClient(s.httpClient),
			llm.WithLogger(s.logger.Named("llm")),
		)
	}
	s.pipeline = pipeline.New(s.generator,
		pipeline.WithTemperature(s.temperature),
		pipeline.WithTimeout(s.timeout),
		pipeline.WithLogger(s.logger.Named("pipeline")),
	)
	s.catalog = source.NewCatalog(s.dataPath, source.WithLogger(s.logger.Named("source")))
	s.sessions = repository.NewSessionStore(ctx, repository.WithIdleTTL(s.sessionTTL))
	s.manager = session.NewManager(s.pipeline, s.sessions, session.WithLogger(s.logger.Named("session")))

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "rca service started",
		logger.String("model", s.model),
		logger.String("host", s.host),
		logger.String("data_path", s.dataPath),
		logger.Duration("timeout", s.timeout),
	)

	return nil
}

// Stop releases background resources.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping rca service...")
	if s.sessions != nil {
		_ = s.sessions.Close()
	}
	s.started = false
	s.logger.Info(context.Background(), "rca service stopped")
}

// components returns the wired parts under the read lock.
func (s *Service) components() (*source.Catalog, *pipeline.Pipeline, *session.Manager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, nil, ErrNotStarted
	}
	return s.catalog, s.pipeline, s.manager, nil
}

// Columns lists the source columns.
func (s *Service) Columns(ctx context.Context) ([]string, error) {
	catalog, _, _, err := s.components()
	if err != nil {
		return nil, err
	}
	return catalog.Columns(ctx)
}

// ListIncidents lists the first limit incidents as id and summary pairs.
func (s *Service) ListIncidents(ctx context.Context, limit int) ([]source.Listing, error) {
	catalog, _, _, err := s.components()
	if err != nil {
		return nil, err
	}
	return catalog.List(ctx, limit)
}

// GetIncident looks up one incident under mapping m.
func (s *Service) GetIncident(ctx context.Context, m source.ColumnMap, id string) (model.Incident, error) {
	catalog, _, _, err := s.components()
	if err != nil {
		return model.Incident{}, err
	}
	return catalog.Find(ctx, m, id)
}

// EvaluateIncident looks up one incident and evaluates it. Nothing is stored.
func (s *Service) EvaluateIncident(ctx context.Context, m source.ColumnMap, id string) (*model.EvaluationResult, error) {
	catalog, p, _, err := s.components()
	if err != nil {
		return nil, err
	}
	inc, err := catalog.Find(ctx, m, id)
	if err != nil {
		return nil, err
	}
	return p.Evaluate(ctx, inc)
}

// ReloadSource drops the cached incident table.
func (s *Service) ReloadSource(ctx context.Context) {
	catalog, _, _, err := s.components()
	if err != nil {
		return
	}
	catalog.Invalidate(ctx)
}

// DefaultColumnMap returns the configured mapping.
func (s *Service) DefaultColumnMap() source.ColumnMap { return s.columns }

// ListLimit returns the default listing size.
func (s *Service) ListLimit() int { return s.listLimit }

// Session returns the stored session for id.
func (s *Service) Session(ctx context.Context, id string) (session.State, error) {
	_, _, manager, err := s.components()
	if err != nil {
		return session.State{}, err
	}
	return manager.Get(ctx, id)
}

// SessionEvaluate evaluates the incident and resets its session.
func (s *Service) SessionEvaluate(ctx context.Context, m source.ColumnMap, id string) (session.State, error) {
	return s.withIncident(ctx, m, id, (*session.Manager).Evaluate)
}

// SessionCritique critiques the stored evaluation of the incident. Sessions
// are keyed by incident id alone, so the incident resolved under m must match
// the one that was evaluated field for field; otherwise the call fails with
// session.ErrIncidentMismatch and no model call is made.
func (s *Service) SessionCritique(ctx context.Context, m source.ColumnMap, id string) (session.State, error) {
	return s.withIncident(ctx, m, id, (*session.Manager).Critique)
}

// SessionImprove rewrites the incident RCA.
func (s *Service) SessionImprove(ctx context.Context, m source.ColumnMap, id string) (session.State, error) {
	return s.withIncident(ctx, m, id, (*session.Manager).Improve)
}

func (s *Service) withIncident(
	ctx context.Context, m source.ColumnMap, id string,
	step func(*session.Manager, context.Context, model.Incident) (session.State, error),
) (session.State, error) {
	catalog, _, manager, err := s.components()
	if err != nil {
		return session.State{}, err
	}
	inc, err := catalog.Find(ctx, m, id)
	if err != nil {
		return session.State{}, err
	}
	return step(manager, ctx, inc)
}

// GetStats returns service statistics for the /stats endpoint.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"model":     s.model,
		"host":      s.host,
		"data_path": s.dataPath,
		"started":   s.started,
	}
	if !s.started {
		return stats
	}
	stats["uptime_seconds"] = int(time.Since(s.startedAt).Seconds())
	stats["sessions"] = s.sessions.Count(ctx)
	return stats
}
