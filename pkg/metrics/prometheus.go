// Package metrics provides Prometheus metrics for the tutormarket service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	refreshInterval  time.Duration
	registry         prometheus.Registerer

	// Pricing
	suggestions       *prometheus.CounterVec
	suggestionLatency prometheus.Histogram
	comparables       prometheus.Histogram
	similarity        prometheus.Histogram
	fallbacks         *prometheus.CounterVec
	misconfigurations prometheus.Counter
	relaxedQueries    prometheus.Counter

	// Ranking
	rankings       prometheus.Counter
	rankingLatency prometheus.Histogram
	rankingScore   prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Suggestion log pipeline
	queueSize         prometheus.Gauge
	queueCapacity     prometheus.Gauge
	queueUtilization  prometheus.Gauge
	queueEnqueued     prometheus.Counter
	queueDequeued     prometheus.Counter
	queueDropped      *prometheus.CounterVec
	workerCount       prometheus.Gauge
	workerLatency     prometheus.Histogram
	sinkWrites        *prometheus.CounterVec
	sinkErrors        *prometheus.CounterVec
	breakerState      prometheus.Gauge
	duplicateAccepts  prometheus.Counter

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// RefreshInterval is how often callers should refresh sampled gauges such
// as memory and goroutine counts.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "tutormarket",
		subsystem:        "core",
		histogramBuckets: prometheus.DefBuckets,
		refreshInterval:  defaultRefreshInterval,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.suggestions = m.counterVec("price_suggestions_total",
		"Price suggestions emitted by confidence level and source (market or rules)", "confidence", "source")
	m.suggestionLatency = m.histogram("price_suggestion_latency_milliseconds",
		"End-to-end latency of a price suggestion in milliseconds", m.histogramBuckets)
	m.comparables = m.histogram("price_similar_comparables",
		"Number of comparables above the similarity threshold per suggestion",
		[]float64{0, 1, 2, 5, 10, 20, 50, 100})
	m.similarity = m.histogram("price_similarity_score",
		"Distribution of peer similarity scores",
		prometheus.LinearBuckets(0, 0.1, 11))
	m.fallbacks = m.counterVec("price_rule_fallbacks_total",
		"Suggestions routed to base-price rules, by reason", "reason")
	m.misconfigurations = m.counter("price_rule_misconfigurations_total",
		"Rule resolutions that found no universal base-price rule")
	m.relaxedQueries = m.counter("price_relaxed_queries_total",
		"Comparable lookups that needed the relaxed (time window only) stage")

	m.rankings = m.counter("rankings_total", "Ranking scores computed")
	m.rankingLatency = m.histogram("ranking_latency_milliseconds",
		"Latency of a ranking computation in milliseconds", m.histogramBuckets)
	m.rankingScore = m.histogram("ranking_score",
		"Distribution of ranking totals", prometheus.LinearBuckets(-100, 50, 12))

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.queueSize = m.gauge("log_queue_size", "Suggestion log records waiting to be written")
	m.queueCapacity = m.gauge("log_queue_capacity", "Capacity of the suggestion log queue")
	m.queueUtilization = m.gauge("log_queue_utilization", "Suggestion log queue utilization (0-1)")
	m.queueEnqueued = m.counter("log_queue_enqueued_total", "Records accepted by the suggestion log queue")
	m.queueDequeued = m.counter("log_queue_dequeued_total", "Records taken off the suggestion log queue")
	m.queueDropped = m.counterVec("log_queue_dropped_total",
		"Records dropped before reaching the sink, by reason", "reason")
	m.workerCount = m.gauge("log_worker_count", "Workers draining the suggestion log queue")
	m.workerLatency = m.histogram("log_worker_latency_milliseconds",
		"Time spent writing one record to the sink", m.histogramBuckets)
	m.sinkWrites = m.counterVec("log_sink_writes_total", "Successful sink writes by record kind", "kind")
	m.sinkErrors = m.counterVec("log_sink_errors_total", "Failed sink writes by record kind", "kind")
	m.breakerState = m.gauge("log_sink_breaker_state",
		"Sink circuit breaker state (0 closed, 1 half-open, 2 open)")
	m.duplicateAccepts = m.counter("log_duplicate_acceptances_total",
		"Acceptance records ignored because the suggestion was already accepted")

	m.errorRateByComponent = m.counterVec("errors_by_component_total",
		"Errors by component and type", "component", "error_type")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total",
		"Errors by endpoint, method and type", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Allocated heap memory in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds",
		"Average GC pause in milliseconds", m.histogramBuckets)
}

// Pricing.

// RecordSuggestion counts an emitted suggestion.
func RecordSuggestion(confidence, source string) {
	globalManager.suggestions.WithLabelValues(confidence, source).Inc()
}

// RecordSuggestionLatency records suggestion latency in milliseconds.
func RecordSuggestionLatency(latencyMs float64) {
	globalManager.suggestionLatency.Observe(latencyMs)
}

// ObserveComparables records the post-filter comparable count.
func ObserveComparables(count int) {
	globalManager.comparables.Observe(float64(count))
}

// ObserveSimilarity records one peer similarity score.
func ObserveSimilarity(score float64) {
	globalManager.similarity.Observe(score)
}

// RecordFallback counts a rule-based suggestion.
func RecordFallback(reason string) {
	globalManager.fallbacks.WithLabelValues(reason).Inc()
}

// RecordMisconfiguration counts a missing universal rule.
func RecordMisconfiguration() {
	globalManager.misconfigurations.Inc()
}

// RecordRelaxedQuery counts a relaxed comparable lookup.
func RecordRelaxedQuery() {
	globalManager.relaxedQueries.Inc()
}

// Ranking.

// RecordRanking records one ranking computation.
func RecordRanking(latencyMs, total float64) {
	globalManager.rankings.Inc()
	globalManager.rankingLatency.Observe(latencyMs)
	globalManager.rankingScore.Observe(total)
}

// HTTP.

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Suggestion log pipeline.

// UpdateQueueSize sets the current queue size and utilization.
func UpdateQueueSize(size, capacity int) {
	globalManager.queueSize.Set(float64(size))
	if capacity > 0 {
		globalManager.queueUtilization.Set(float64(size) / float64(capacity))
	}
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueDropped counts a record dropped before the sink.
func RecordQueueDropped(reason string) {
	globalManager.queueDropped.WithLabelValues(reason).Inc()
}

// UpdateWorkerCount sets the number of log workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerLatency records the time spent writing one record.
func RecordWorkerLatency(latencyMs float64) {
	globalManager.workerLatency.Observe(latencyMs)
}

// RecordSinkWrite counts a successful sink write.
func RecordSinkWrite(kind string) {
	globalManager.sinkWrites.WithLabelValues(kind).Inc()
}

// RecordSinkError counts a failed sink write.
func RecordSinkError(kind string) {
	globalManager.sinkErrors.WithLabelValues(kind).Inc()
}

// UpdateBreakerState sets the sink breaker state gauge.
func UpdateBreakerState(state int) {
	globalManager.breakerState.Set(float64(state))
}

// RecordDuplicateAcceptance counts an ignored repeated acceptance.
func RecordDuplicateAcceptance() {
	globalManager.duplicateAccepts.Inc()
}

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
