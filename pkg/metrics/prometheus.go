// Package metrics provides Prometheus metrics for the floodwatch integrity pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// subsystem prefixes every collector after the namespace.
const subsystem = "pipeline"

// tamperScoreBuckets covers the [0,1] confidence range.
var tamperScoreBuckets = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0} //nolint:gochecknoglobals // fixed bucket layout

// Manager manages all Prometheus metrics for the floodwatch service.
type Manager struct {
	namespace        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Tamper detection
	submissionsAnalyzed prometheus.Counter
	detections          *prometheus.CounterVec
	ruleFaults          *prometheus.CounterVec
	analysisLatency     prometheus.Histogram
	tamperScore         prometheus.Histogram
	batchRuns           prometheus.Counter

	// Sync reconciliation
	syncPasses       *prometheus.CounterVec
	syncItems        *prometheus.CounterVec
	syncPassDuration prometheus.Histogram
	deliveryLatency  prometheus.Histogram
	photoTransfers   *prometheus.CounterVec
	syncBacklog      *prometheus.GaugeVec
	syncInProgress   prometheus.Gauge
	syncLoopAlive    prometheus.Gauge
	syncLastPassUnix prometheus.Gauge

	// Repository
	repositoryQueryLatency *prometheus.HistogramVec
	repositoryErrors       *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "floodwatch",
		histogramBuckets: prometheus.DefBuckets,
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
		Namespace: m.namespace, Subsystem: subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: m.histogramBuckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	m.submissionsAnalyzed = m.counter("submissions_analyzed_total", "Total number of submissions run through the tamper rules")
	m.detections = m.counterVec("detections_total", "Detections raised by type and severity", "type", "severity")
	m.ruleFaults = m.counterVec("rule_faults_total", "Rule evaluations that failed and were skipped", "rule")
	m.analysisLatency = m.histogram("analysis_latency_milliseconds", "Latency of one submission analysis in milliseconds", m.histogramBuckets)
	m.tamperScore = m.histogram("tamper_score", "Distribution of aggregate tamper scores", tamperScoreBuckets)
	m.batchRuns = m.counter("batch_analysis_runs_total", "Total number of batch re-analysis runs")

	m.syncPasses = m.counterVec("sync_passes_total", "Reconciliation passes by type and outcome", "type", "outcome")
	m.syncItems = m.counterVec("sync_items_total", "Per-submission sync attempts by outcome", "outcome")
	m.syncPassDuration = m.histogram("sync_pass_duration_milliseconds", "Duration of a reconciliation pass in milliseconds", m.histogramBuckets)
	m.deliveryLatency = m.histogram("sync_delivery_latency_milliseconds", "Latency of a single delivery attempt in milliseconds", m.histogramBuckets)
	m.photoTransfers = m.counterVec("photo_transfers_total", "Photo transfers by outcome", "outcome")
	m.syncBacklog = promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: subsystem,
		Name: "sync_backlog", Help: "Submissions per sync status",
	}, []string{"status"})
	m.syncInProgress = m.gauge("sync_in_progress", "1 while a reconciliation pass is running")
	m.syncLoopAlive = m.gauge("sync_loop_alive", "1 while the background sync loop is running")
	m.syncLastPassUnix = m.gauge("sync_last_pass_unix", "Unix time of the last finished reconciliation pass")

	m.repositoryQueryLatency = m.histogramVec("repository_query_latency_milliseconds", "Store operation latency in milliseconds", "op")
	m.repositoryErrors = m.counterVec("repository_errors_total", "Store operation errors", "op")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "HTTP errors by endpoint, method and error type", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Allocated heap memory in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Average GC pause time in milliseconds", m.histogramBuckets)
}

func on() bool { return globalManager != nil }

// Tamper detection.

// RecordSubmissionAnalyzed records one analysis with its latency and resulting score.
func RecordSubmissionAnalyzed(latencyMs, score float64) {
	if !on() {
		return
	}
	globalManager.submissionsAnalyzed.Inc()
	globalManager.analysisLatency.Observe(latencyMs)
	globalManager.tamperScore.Observe(score)
}

// RecordDetection increments the detection counter for a type and severity.
func RecordDetection(detectionType, severity string) {
	if !on() {
		return
	}
	globalManager.detections.WithLabelValues(detectionType, severity).Inc()
}

// RecordRuleFault increments the fault counter for a rule.
func RecordRuleFault(rule string) {
	if !on() {
		return
	}
	globalManager.ruleFaults.WithLabelValues(rule).Inc()
}

// RecordBatchRun increments the batch analysis counter.
func RecordBatchRun() {
	if !on() {
		return
	}
	globalManager.batchRuns.Inc()
}

// Sync reconciliation.

// RecordSyncPass records a finished pass; outcome is success, failed or skipped.
func RecordSyncPass(passType, outcome string, durationMs float64) {
	if !on() {
		return
	}
	globalManager.syncPasses.WithLabelValues(passType, outcome).Inc()
	if outcome != "skipped" {
		globalManager.syncPassDuration.Observe(durationMs)
	}
}

// RecordSyncItem records a per-submission attempt by outcome.
func RecordSyncItem(outcome string, latencyMs float64) {
	if !on() {
		return
	}
	globalManager.syncItems.WithLabelValues(outcome).Inc()
	globalManager.deliveryLatency.Observe(latencyMs)
}

// RecordPhotoTransfer records a photo transfer; outcome is transferred, missing or failed.
func RecordPhotoTransfer(outcome string) {
	if !on() {
		return
	}
	globalManager.photoTransfers.WithLabelValues(outcome).Inc()
}

// UpdateSyncBacklog sets the number of submissions in a sync status.
func UpdateSyncBacklog(status string, count int) {
	if !on() {
		return
	}
	globalManager.syncBacklog.WithLabelValues(status).Set(float64(count))
}

// UpdateSyncInProgress flags whether a pass is running.
func UpdateSyncInProgress(running bool) {
	if !on() {
		return
	}
	globalManager.syncInProgress.Set(boolToFloat(running))
}

// UpdateSyncLoopAlive flags whether the background loop is running.
func UpdateSyncLoopAlive(alive bool) {
	if !on() {
		return
	}
	globalManager.syncLoopAlive.Set(boolToFloat(alive))
}

// UpdateSyncLastPass sets the unix time of the last finished pass.
func UpdateSyncLastPass(unix int64) {
	if !on() {
		return
	}
	globalManager.syncLastPassUnix.Set(float64(unix))
}

// Repository.

// RecordRepositoryQuery records a store operation latency and whether it failed.
func RecordRepositoryQuery(op string, latencyMs float64, failed bool) {
	if !on() {
		return
	}
	globalManager.repositoryQueryLatency.WithLabelValues(op).Observe(latencyMs)
	if failed {
		globalManager.repositoryErrors.WithLabelValues(op).Inc()
	}
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if !on() {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if !on() {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if !on() {
		return
	}
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if !on() {
		return
	}
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	if !on() {
		return
	}
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	if !on() {
		return
	}
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
