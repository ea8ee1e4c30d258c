package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "stock_analyst"

// Metrics holds the Prometheus collectors of the analyst service
type Metrics struct {
	// queries and the graph stages they run through
	QueryRequestsTotal   *prometheus.CounterVec
	QueryDuration        *prometheus.HistogramVec
	QueryErrorsTotal     *prometheus.CounterVec
	IntentTotal          *prometheus.CounterVec
	QueriesInFlight      prometheus.Gauge
	QueryRejectionsTotal *prometheus.CounterVec
	StageDuration        *prometheus.HistogramVec
	StageErrorsTotal     *prometheus.CounterVec

	// model calls
	ModelAttempts  *prometheus.HistogramVec
	ToolIterations *prometheus.HistogramVec
	ToolCallsTotal *prometheus.CounterVec
	SentimentScore *prometheus.HistogramVec

	// upstream data and model providers
	ExternalAPIRequestsTotal *prometheus.CounterVec
	ExternalAPIErrorsTotal   *prometheus.CounterVec
	ExternalAPIDuration      *prometheus.HistogramVec
	CircuitBreakerState      *prometheus.GaugeVec
	CircuitBreakerTrips      *prometheus.CounterVec

	// persistence
	DBQueryDuration *prometheus.HistogramVec
	DBQueryTotal    *prometheus.CounterVec
	DBErrorsTotal   *prometheus.CounterVec
	ChartCacheTotal *prometheus.CounterVec

	// HTTP surface
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec
}

// seconds; model calls and full runs can take minutes
var durationBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120}

var countBuckets = []float64{1, 2, 3, 4, 5, 6, 8, 10}

// sentiment scores run 1..100
var scoreBuckets = prometheus.LinearBuckets(10, 10, 10)

var globalMetrics *Metrics

type collectors struct {
	f promauto.Factory
}

func (c collectors) counter(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return c.f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	}, labels)
}

func (c collectors) histogram(subsystem, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return c.f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets,
	}, labels)
}

func (c collectors) gauge(subsystem, name, help string, labels ...string) *prometheus.GaugeVec {
	return c.f.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
	}, labels)
}

// NewMetrics registers every collector on reg, or on the default registerer when reg is nil
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := collectors{f: promauto.With(reg)}

	return &Metrics{
		QueryRequestsTotal: c.counter("query", "requests_total", "Analyst queries received", "mode"),
		QueryDuration:      c.histogram("query", "duration_seconds", "Duration of a full workflow run", durationBuckets, "intent", "status"),
		QueryErrorsTotal:   c.counter("query", "errors_total", "Workflow runs that failed", "intent", "error_type"),
		IntentTotal:        c.counter("query", "intent_total", "Queries routed to each workflow branch", "intent"),
		QueriesInFlight: c.f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "query", Name: "in_flight", Help: "Queries currently holding a worker slot",
		}),
		QueryRejectionsTotal: c.counter("query", "rejections_total", "Queries refused before running", "reason"),
		StageDuration:        c.histogram("stage", "duration_seconds", "Duration of a workflow stage", durationBuckets, "stage"),
		StageErrorsTotal:     c.counter("stage", "errors_total", "Workflow stage failures", "stage", "error_type"),

		ModelAttempts:  c.histogram("model", "attempts", "Attempts needed for a schema-valid model response", countBuckets, "stage"),
		ToolIterations: c.histogram("model", "tool_iterations", "Model rounds used by the tool-calling loop", countBuckets, "stage"),
		ToolCallsTotal: c.counter("model", "tool_calls_total", "Tool invocations requested by the model", "tool"),
		SentimentScore: c.histogram("model", "sentiment_score", "News sentiment scores returned by the model", scoreBuckets, "sentiment"),

		ExternalAPIRequestsTotal: c.counter("external_api", "requests_total", "Upstream API requests", "service", "operation"),
		ExternalAPIErrorsTotal:   c.counter("external_api", "errors_total", "Upstream API errors", "service", "operation", "error_type"),
		ExternalAPIDuration:      c.histogram("external_api", "duration_seconds", "Duration of upstream API calls", durationBuckets, "service", "operation"),
		CircuitBreakerState:      c.gauge("circuit_breaker", "state", "Breaker state per upstream (0=closed, 1=half-open, 2=open)", "service"),
		CircuitBreakerTrips:      c.counter("circuit_breaker", "trips_total", "Times a breaker opened", "service"),

		DBQueryDuration: c.histogram("database", "query_duration_seconds", "Duration of database queries", durationBuckets, "operation", "table"),
		DBQueryTotal:    c.counter("database", "queries_total", "Database queries issued", "operation", "table"),
		DBErrorsTotal:   c.counter("database", "errors_total", "Database queries that failed", "operation", "table"),
		ChartCacheTotal: c.counter("charts", "cache_lookups_total", "Chart cache lookups by outcome", "result"),

		HTTPRequestsTotal:   c.counter("http", "requests_total", "HTTP requests served", "method", "path", "status_code"),
		HTTPRequestDuration: c.histogram("http", "request_duration_seconds", "Duration of HTTP requests", durationBuckets, "method", "path"),
		HTTPResponseSize:    c.histogram("http", "response_size_bytes", "Size of HTTP responses", prometheus.ExponentialBuckets(100, 10, 6), "method", "path"),
	}
}

// InitMetrics registers the global collectors on the default registerer
func InitMetrics() *Metrics {
	globalMetrics = NewMetrics(nil)
	return globalMetrics
}

// GetMetrics returns the global collectors, registering them on first use
func GetMetrics() *Metrics {
	if globalMetrics == nil {
		return InitMetrics()
	}
	return globalMetrics
}

// SetMetrics replaces the global collectors. Tests use it with a private registry.
func SetMetrics(m *Metrics) {
	globalMetrics = m
}

func (m *Metrics) RecordQueryRequest(mode string) {
	m.QueryRequestsTotal.WithLabelValues(mode).Inc()
}

func (m *Metrics) RecordIntent(intent string) {
	m.IntentTotal.WithLabelValues(intent).Inc()
}

func (m *Metrics) RecordQueryDuration(intent, status string, d time.Duration) {
	m.QueryDuration.WithLabelValues(intent, status).Observe(d.Seconds())
}

func (m *Metrics) RecordQueryError(intent, errorType string) {
	m.QueryErrorsTotal.WithLabelValues(intent, errorType).Inc()
}

// QueryStarted and QueryFinished bracket a query holding a worker slot
func (m *Metrics) QueryStarted()  { m.QueriesInFlight.Inc() }
func (m *Metrics) QueryFinished() { m.QueriesInFlight.Dec() }

// RecordQueryRejected counts a query turned away, e.g. reason "queue_full"
func (m *Metrics) RecordQueryRejected(reason string) {
	m.QueryRejectionsTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordStageDuration(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) RecordStageError(stage, errorType string) {
	m.StageErrorsTotal.WithLabelValues(stage, errorType).Inc()
}

func (m *Metrics) RecordModelAttempts(stage string, attempts int) {
	m.ModelAttempts.WithLabelValues(stage).Observe(float64(attempts))
}

func (m *Metrics) RecordToolIterations(stage string, iterations int) {
	m.ToolIterations.WithLabelValues(stage).Observe(float64(iterations))
}

func (m *Metrics) RecordToolCall(tool string) {
	m.ToolCallsTotal.WithLabelValues(tool).Inc()
}

// RecordSentiment observes a score under its overall label (POSITIVE, NEGATIVE, NEUTRAL)
func (m *Metrics) RecordSentiment(sentiment string, score int) {
	m.SentimentScore.WithLabelValues(sentiment).Observe(float64(score))
}

func (m *Metrics) RecordExternalAPIRequest(service, operation string) {
	m.ExternalAPIRequestsTotal.WithLabelValues(service, operation).Inc()
}

func (m *Metrics) RecordExternalAPIError(service, operation, errorType string) {
	m.ExternalAPIErrorsTotal.WithLabelValues(service, operation, errorType).Inc()
}

func (m *Metrics) RecordExternalAPIDuration(service, operation string, d time.Duration) {
	m.ExternalAPIDuration.WithLabelValues(service, operation).Observe(d.Seconds())
}

func (m *Metrics) SetCircuitBreakerState(service string, state int) {
	m.CircuitBreakerState.WithLabelValues(service).Set(float64(state))
}

func (m *Metrics) RecordCircuitBreakerTrip(service string) {
	m.CircuitBreakerTrips.WithLabelValues(service).Inc()
}

// RecordDBQuery counts a query and observes its duration
func (m *Metrics) RecordDBQuery(operation, table string, d time.Duration) {
	m.DBQueryTotal.WithLabelValues(operation, table).Inc()
	m.DBQueryDuration.WithLabelValues(operation, table).Observe(d.Seconds())
}

func (m *Metrics) RecordDBError(operation, table string) {
	m.DBErrorsTotal.WithLabelValues(operation, table).Inc()
}

// RecordChartCache counts a chart cache lookup: "hit", "miss" or "error"
func (m *Metrics) RecordChartCache(result string) {
	m.ChartCacheTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, d time.Duration, responseSize int) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
	m.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// Timer measures one operation and reports it to the matching histogram
type Timer struct {
	start   time.Time
	metrics *Metrics
}

func (m *Metrics) NewTimer() *Timer {
	return &Timer{start: time.Now(), metrics: m}
}

func (t *Timer) ObserveQuery(intent, status string) {
	t.metrics.RecordQueryDuration(intent, status, t.Duration())
}

func (t *Timer) ObserveStage(stage string) {
	t.metrics.RecordStageDuration(stage, t.Duration())
}

func (t *Timer) ObserveExternalAPI(service, operation string) {
	t.metrics.RecordExternalAPIDuration(service, operation, t.Duration())
}

func (t *Timer) ObserveDB(operation, table string) {
	t.metrics.RecordDBQuery(operation, table, t.Duration())
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
