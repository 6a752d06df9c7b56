// Package metrics provides Prometheus metrics for the jamwheel service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every jamwheel collector.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	delayBuckets     []float64
	registry         prometheus.Registerer

	// Wheel
	spinsStarted   prometheus.Counter
	spinsCompleted prometheus.Counter
	spinsCancelled prometheus.Counter
	spinsRejected  *prometheus.CounterVec
	wheelSlices    prometheus.Histogram

	// Retry queue
	retryEnqueued  prometheus.Counter
	retryAttempts  *prometheus.CounterVec
	retrySucceeded prometheus.Counter
	retryExhausted prometheus.Counter
	retryDropped   prometheus.Counter
	retryLive      prometheus.Gauge
	retryDelay     prometheus.Histogram

	// CSV import
	csvRowsParsed    prometheus.Counter
	csvRowsSkipped   *prometheus.CounterVec
	csvTeamsAccepted prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // process-wide collectors

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // process-wide registry

func init() { //nolint:gochecknoinits // global collectors must exist before any component records
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "jamwheel",
		subsystem:        "",
		histogramBuckets: prometheus.DefBuckets,
		delayBuckets:     []float64{0, 250, 500, 1000, 2000, 4000, 8000, 16000, 30000, 60000},
		registry:         prometheus.NewRegistry(),
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.spinsStarted = m.counter("spins_started_total", "Spins that passed the idle/enabled guards")
	m.spinsCompleted = m.counter("spins_completed_total", "Spins that resolved with a winner")
	m.spinsCancelled = m.counter("spins_cancelled_total", "Spins cancelled by a reset before resolving")
	m.spinsRejected = m.counterVec("spins_rejected_total", "Spin requests refused by a guard", "reason")
	m.wheelSlices = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "wheel_slices",
		Help:      "Number of slices on the wheel at spin time",
		Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
	})

	m.retryEnqueued = m.counter("retry_tasks_enqueued_total", "Tasks handed to the retry queue")
	m.retryAttempts = m.counterVec("retry_attempts_total", "Retry queue attempts by outcome", "outcome")
	m.retrySucceeded = m.counter("retry_tasks_succeeded_total", "Tasks that eventually succeeded")
	m.retryExhausted = m.counter("retry_tasks_exhausted_total", "Tasks dropped after their last attempt")
	m.retryDropped = m.counter("retry_tasks_dropped_total", "Tasks refused because the queue was closed")
	m.retryLive = m.gauge("retry_tasks_live", "Tasks currently scheduled or running")
	m.retryDelay = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "retry_backoff_delay_milliseconds",
		Help:      "Backoff delay chosen before a re-attempt",
		Buckets:   m.delayBuckets,
	})

	m.csvRowsParsed = m.counter("csv_rows_parsed_total", "CSV data rows examined")
	m.csvRowsSkipped = m.counterVec("csv_rows_skipped_total", "CSV data rows skipped by reason", "reason")
	m.csvTeamsAccepted = m.counter("csv_teams_accepted_total", "Teams that survived CSV validation")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// RecordSpinStarted counts a spin that entered the Spinning state.
func RecordSpinStarted(slices int) {
	globalManager.spinsStarted.Inc()
	globalManager.wheelSlices.Observe(float64(slices))
}

// RecordSpinCompleted counts a spin that delivered its winner.
func RecordSpinCompleted() { globalManager.spinsCompleted.Inc() }

// RecordSpinCancelled counts a spin suppressed by a reset.
func RecordSpinCancelled() { globalManager.spinsCancelled.Inc() }

// RecordSpinRejected counts a spin refused by a guard.
func RecordSpinRejected(reason string) { globalManager.spinsRejected.WithLabelValues(reason).Inc() }

// RecordRetryEnqueued counts a new retry task.
func RecordRetryEnqueued() { globalManager.retryEnqueued.Inc() }

// RecordRetryAttempt counts one attempt with outcome "success" or "failure".
func RecordRetryAttempt(outcome string) { globalManager.retryAttempts.WithLabelValues(outcome).Inc() }

// RecordRetrySucceeded counts a task removed after success.
func RecordRetrySucceeded() { globalManager.retrySucceeded.Inc() }

// RecordRetryExhausted counts a task removed after its final failure.
func RecordRetryExhausted() { globalManager.retryExhausted.Inc() }

// RecordRetryDropped counts a task refused by a closed queue.
func RecordRetryDropped() { globalManager.retryDropped.Inc() }

// UpdateRetryLive sets the live task gauge.
func UpdateRetryLive(n int) { globalManager.retryLive.Set(float64(n)) }

// RecordRetryDelay observes a backoff delay in milliseconds.
func RecordRetryDelay(ms float64) { globalManager.retryDelay.Observe(ms) }

// RecordCSVRowParsed counts one examined data row.
func RecordCSVRowParsed() { globalManager.csvRowsParsed.Inc() }

// RecordCSVRowSkipped counts one skipped data row.
func RecordCSVRowSkipped(reason string) { globalManager.csvRowsSkipped.WithLabelValues(reason).Inc() }

// RecordCSVTeamAccepted counts one accepted team.
func RecordCSVTeamAccepted() { globalManager.csvTeamsAccepted.Inc() }

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// UpdateSystemMemoryUsage sets the heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
