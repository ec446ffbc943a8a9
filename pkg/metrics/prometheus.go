// Package metrics provides Prometheus metrics for the RCA scoring service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for model calls.
const (
	OutcomeOK        = "ok"
	OutcomeTransport = "transport_error"
	OutcomeMalformed = "malformed_response"
	OutcomeSchema    = "schema_violation"
)

// Row status labels for batch runs.
const (
	RowValid  = "valid"
	RowFailed = "failed"
)

// Model calls against a local LLM take seconds, not milliseconds.
var defaultLatencyBuckets = []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 180000}

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	registry       prometheus.Registerer

	// Model calls
	llmCalls       *prometheus.CounterVec
	llmLatency     *prometheus.HistogramVec
	llmFallbacks   prometheus.Counter
	llmPromptBytes prometheus.Histogram
	schemaFailures *prometheus.CounterVec

	// Batch runs
	batchRows     *prometheus.CounterVec
	batchDuration prometheus.Histogram
	batchAverage  prometheus.Gauge
	batchRetries  prometheus.Counter

	// HTTP tool surface
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	sessionsActive      prometheus.Gauge
	catalogRows         prometheus.Gauge

	// Errors by component
	errors *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "rca",
		subsystem:      "scoring",
		latencyBuckets: defaultLatencyBuckets,
		registry:       prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for all metric definitions
	auto := promauto.With(m.registry)

	m.llmCalls = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "llm_calls_total",
		Help:      "Model calls by pipeline operation and outcome",
	}, []string{"operation", "outcome"})

	m.llmLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "llm_call_latency_milliseconds",
		Help:      "Round trip latency of model calls in milliseconds",
		Buckets:   m.latencyBuckets,
	}, []string{"operation"})

	m.llmFallbacks = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "llm_fallback_extractions_total",
		Help:      "Responses that needed brace extraction before they parsed as JSON",
	})

	m.llmPromptBytes = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "llm_prompt_bytes",
		Help:      "Size of rendered prompts in bytes",
		Buckets:   prometheus.ExponentialBuckets(512, 2, 8),
	})

	m.schemaFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "schema_violations_total",
		Help:      "Parsed model output rejected by schema validation",
	}, []string{"schema"})

	m.batchRows = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batch_rows_total",
		Help:      "Batch rows processed by status",
	}, []string{"status"})

	m.batchDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batch_duration_seconds",
		Help:      "Wall time of complete batch runs",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	})

	m.batchAverage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batch_average_total",
		Help:      "Average total score of the last completed batch",
	})

	m.batchRetries = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batch_retries_total",
		Help:      "Row evaluations retried after a transport failure",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "HTTP requests by endpoint, method and status",
	}, []string{"endpoint", "method", "status"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.latencyBuckets,
	}, []string{"endpoint", "method", "status"})

	m.sessionsActive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sessions_active",
		Help:      "Incident sessions currently held in memory",
	})

	m.catalogRows = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "catalog_rows",
		Help:      "Rows in the loaded incident source, zero when not loaded",
	})

	m.errors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "errors_total",
		Help:      "Errors by component and type",
	}, []string{"component", "type"})
}

// RecordLLMCall records the outcome and latency of one model call.
func (m *Manager) RecordLLMCall(operation, outcome string, latencyMs float64) {
	m.llmCalls.WithLabelValues(operation, outcome).Inc()
	m.llmLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordFallbackExtraction counts a response recovered by brace extraction.
func (m *Manager) RecordFallbackExtraction() { m.llmFallbacks.Inc() }

// RecordPromptSize observes the size of a rendered prompt.
func (m *Manager) RecordPromptSize(bytes int) { m.llmPromptBytes.Observe(float64(bytes)) }

// RecordSchemaViolation counts a rejected payload for the named schema.
func (m *Manager) RecordSchemaViolation(schema string) {
	m.schemaFailures.WithLabelValues(schema).Inc()
}

// RecordBatchRow counts one processed batch row.
func (m *Manager) RecordBatchRow(status string) { m.batchRows.WithLabelValues(status).Inc() }

// RecordBatchRun records the duration and average of a finished batch.
func (m *Manager) RecordBatchRun(seconds, average float64) {
	m.batchDuration.Observe(seconds)
	m.batchAverage.Set(average)
}

// RecordBatchRetry counts one retried row evaluation.
func (m *Manager) RecordBatchRetry() { m.batchRetries.Inc() }

// RecordHTTPRequest records one served HTTP request.
func (m *Manager) RecordHTTPRequest(endpoint, method, status string, durationMs float64) {
	m.httpRequests.WithLabelValues(endpoint, method, status).Inc()
	m.httpRequestDuration.WithLabelValues(endpoint, method, status).Observe(durationMs)
}

// UpdateSessionsActive sets the number of sessions held in memory.
func (m *Manager) UpdateSessionsActive(n int) { m.sessionsActive.Set(float64(n)) }

// UpdateCatalogRows sets the row count of the loaded incident source.
func (m *Manager) UpdateCatalogRows(n int) { m.catalogRows.Set(float64(n)) }

// RecordError counts an error for a component.
func (m *Manager) RecordError(component, errorType string) {
	m.errors.WithLabelValues(component, errorType).Inc()
}

// Handler serves the metrics registered on registry, which must also be a Gatherer.
func Handler(registry prometheus.Registerer) (http.Handler, error) {
	g, ok := registry.(prometheus.Gatherer)
	if !ok {
		return nil, ErrNotGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{}), nil
}

// Global convenience functions.

func RecordLLMCall(operation, outcome string, latencyMs float64) {
	globalManager.RecordLLMCall(operation, outcome, latencyMs)
}

func RecordFallbackExtraction() { globalManager.RecordFallbackExtraction() }

func RecordPromptSize(bytes int) { globalManager.RecordPromptSize(bytes) }

func RecordSchemaViolation(schema string) { globalManager.RecordSchemaViolation(schema) }

func RecordBatchRow(status string) { globalManager.RecordBatchRow(status) }

func RecordBatchRun(seconds, average float64) { globalManager.RecordBatchRun(seconds, average) }

func RecordBatchRetry() { globalManager.RecordBatchRetry() }

func RecordHTTPRequest(endpoint, method, status string, durationMs float64) {
	globalManager.RecordHTTPRequest(endpoint, method, status, durationMs)
}

func UpdateSessionsActive(n int) { globalManager.UpdateSessionsActive(n) }

func UpdateCatalogRows(n int) { globalManager.UpdateCatalogRows(n) }

func RecordError(component, errorType string) { globalManager.RecordError(component, errorType) }

// GetRegistry returns the registry backing the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
