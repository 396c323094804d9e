// Package metrics provides Prometheus metrics for the shillbot settlement pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the settlement service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Window close outcomes
	closesTotal   *prometheus.CounterVec
	closeDuration prometheus.Histogram

	// Pipeline
	postsIngested *prometheus.CounterVec
	postsFetched  *prometheus.CounterVec
	postsDropped  *prometheus.CounterVec
	authorsRanked prometheus.Gauge

	// Money
	transfersTotal  *prometheus.CounterVec
	lamportsSent    *prometheus.CounterVec
	potLamports     prometheus.Gauge
	treasuryBalance prometheus.Gauge

	// External dependencies
	holdingChecks       *prometheus.CounterVec
	holdingCheckLatency prometheus.Histogram
	rpcRetries          *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
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
		namespace:        "shillbot",
		subsystem:        "settlement",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	m.closesTotal = m.counterVec("window_closes_total", "Window close invocations by outcome", "outcome")
	m.closeDuration = m.histogram("window_close_duration_seconds", "Wall time of a window close")

	m.postsIngested = m.counterVec("posts_ingested_total", "Post pulls written to the ingest store", "provenance")
	m.postsFetched = m.counterVec("posts_fetched_total", "Posts pulled from the ingest store", "provenance")
	m.postsDropped = m.counterVec("posts_dropped_total", "Posts dropped before scoring by reason", "reason")
	m.authorsRanked = m.gauge("authors_ranked", "Authors in the ranked list of the last scoring pass")

	m.transfersTotal = m.counterVec("transfers_total", "Transfer instructions by payee kind and final status", "kind", "status")
	m.lamportsSent = m.counterVec("lamports_sent_total", "Lamports successfully transferred by payee kind", "kind")
	m.potLamports = m.gauge("pot_lamports", "Winner pot of the last closed window")
	m.treasuryBalance = m.gauge("treasury_balance_lamports", "Last observed treasury balance")

	m.holdingChecks = m.counterVec("holding_checks_total", "Token holding checks by result", "result")
	m.holdingCheckLatency = m.histogram("holding_check_latency_seconds", "Latency of one holding check")
	m.rpcRetries = m.counterVec("rpc_retries_total", "Retried read-only RPC calls by method", "method")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = m.counterVec("errors_total", "Errors by component and type", "component", "error_type")
}

// RecordClose counts a close invocation and its duration.
func RecordClose(outcome string, seconds float64) {
	globalManager.closesTotal.WithLabelValues(outcome).Inc()
	globalManager.closeDuration.Observe(seconds)
}

// RecordPostsIngested counts post pulls stored by ingest.
func RecordPostsIngested(provenance string, n int) {
	globalManager.postsIngested.WithLabelValues(provenance).Add(float64(n))
}

// RecordPostsFetched counts posts pulled for a pass.
func RecordPostsFetched(provenance string, n int) {
	globalManager.postsFetched.WithLabelValues(provenance).Add(float64(n))
}

// RecordPostsDropped counts posts dropped for reason.
func RecordPostsDropped(reason string, n int) {
	globalManager.postsDropped.WithLabelValues(reason).Add(float64(n))
}

// UpdateAuthorsRanked sets the ranked author count.
func UpdateAuthorsRanked(n int) {
	globalManager.authorsRanked.Set(float64(n))
}

// RecordTransfer counts a transfer outcome.
func RecordTransfer(kind, status string, lamports int64) {
	globalManager.transfersTotal.WithLabelValues(kind, status).Inc()
	if status == "sent" {
		globalManager.lamportsSent.WithLabelValues(kind).Add(float64(lamports))
	}
}

// UpdatePot sets the pot of the last close.
func UpdatePot(lamports int64) {
	globalManager.potLamports.Set(float64(lamports))
}

// UpdateTreasuryBalance sets the last observed treasury balance.
func UpdateTreasuryBalance(lamports int64) {
	globalManager.treasuryBalance.Set(float64(lamports))
}

// RecordHoldingCheck counts a holding check and its latency.
func RecordHoldingCheck(result string, seconds float64) {
	globalManager.holdingChecks.WithLabelValues(result).Inc()
	globalManager.holdingCheckLatency.Observe(seconds)
}

// RecordRPCRetry counts a retried RPC call.
func RecordRPCRetry(method string) {
	globalManager.rpcRetries.WithLabelValues(method).Inc()
}

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
