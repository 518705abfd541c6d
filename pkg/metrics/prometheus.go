// Package metrics provides Prometheus metrics for the shelfrank scoring engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the engine.
type Manager struct {
	namespace      string
	subsystem      string
	requestBuckets []float64
	stageBuckets   []float64
	storeBuckets   []float64
	registry       prometheus.Registerer

	// Run metrics
	runsTotal        *prometheus.CounterVec
	entitiesScanned  *prometheus.CounterVec
	entitiesUpdated  *prometheus.CounterVec
	batchesCommitted *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec

	// Tree metrics
	treeOrphans        *prometheus.GaugeVec
	treeExports        *prometheus.CounterVec
	treeExportDuration *prometheus.HistogramVec

	// Composite metrics
	compositeRequests *prometheus.CounterVec

	// Store metrics
	storeLatency *prometheus.HistogramVec

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorRateByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "shelfrank",
		subsystem:      "engine",
		requestBuckets: prometheus.DefBuckets,
		stageBuckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		storeBuckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		registry:       prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric definition
	auto := promauto.With(m.registry)

	m.runsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "runs_total",
		Help:      "Recompute runs by stage and outcome",
	}, []string{"stage", "outcome"})

	m.entitiesScanned = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "entities_scanned_total",
		Help:      "Entities read by recompute stages",
	}, []string{"stage", "kind"})

	m.entitiesUpdated = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "entities_updated_total",
		Help:      "Entities whose score fields changed and were written",
	}, []string{"stage", "kind"})

	m.batchesCommitted = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batches_committed_total",
		Help:      "Write batches committed",
	}, []string{"stage"})

	m.stageDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stage_duration_seconds",
		Help:      "Duration of one recompute stage over one population",
		Buckets:   m.stageBuckets,
	}, []string{"stage"})

	m.treeOrphans = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "tree_orphan_nodes",
		Help:      "Subject nodes whose parent is missing from the last loaded forest",
	}, []string{"work_set"})

	m.treeExports = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "tree_exports_total",
		Help:      "Tree exports by mode",
	}, []string{"mode"})

	m.treeExportDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "tree_export_duration_seconds",
		Help:      "Duration of one tree export",
		Buckets:   m.requestBuckets,
	}, []string{"mode"})

	m.compositeRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "composite_requests_total",
		Help:      "Composite score computations by path and outcome",
	}, []string{"path", "outcome"})

	m.storeLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_operation_duration_milliseconds",
		Help:      "Store operation latency in milliseconds",
		Buckets:   m.storeBuckets,
	}, []string{"store", "operation"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests by endpoint and status",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   m.requestBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "errors_by_component_total",
		Help:      "Errors by component and type",
	}, []string{"component", "error_type"})
}

// Run metrics functions.

// RecordRun counts a finished run.
func RecordRun(stage, outcome string) {
	globalManager.runsTotal.WithLabelValues(stage, outcome).Inc()
}

// RecordScanned adds to the scanned entity counter.
func RecordScanned(stage, kind string, n int) {
	globalManager.entitiesScanned.WithLabelValues(stage, kind).Add(float64(n))
}

// RecordUpdated adds to the updated entity counter.
func RecordUpdated(stage, kind string, n int) {
	globalManager.entitiesUpdated.WithLabelValues(stage, kind).Add(float64(n))
}

// RecordBatchCommitted counts one committed write batch.
func RecordBatchCommitted(stage string) {
	globalManager.batchesCommitted.WithLabelValues(stage).Inc()
}

// RecordStageDuration records a stage duration in seconds.
func RecordStageDuration(stage string, seconds float64) {
	globalManager.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// Tree metrics functions.

// UpdateTreeOrphans sets the orphan count of the last forest loaded for a work set.
func UpdateTreeOrphans(workSet string, n int) {
	globalManager.treeOrphans.WithLabelValues(workSet).Set(float64(n))
}

// RecordTreeExport counts a tree export and records its duration in seconds.
func RecordTreeExport(mode string, seconds float64) {
	globalManager.treeExports.WithLabelValues(mode).Inc()
	globalManager.treeExportDuration.WithLabelValues(mode).Observe(seconds)
}

// RecordCompositeRequest counts a composite computation.
func RecordCompositeRequest(path, outcome string) {
	globalManager.compositeRequests.WithLabelValues(path, outcome).Inc()
}

// RecordStoreLatency records a store operation latency in milliseconds.
func RecordStoreLatency(store, operation string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(store, operation).Observe(latencyMs)
}

// HTTP metrics functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
