// Package metrics provides Prometheus metrics for the rally matchmaking engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Dispatch
	matchesCreated   prometheus.Counter
	invitationsSent  *prometheus.CounterVec
	claimOutcomes    *prometheus.CounterVec
	rankingLatency   prometheus.Histogram
	deadpoolAlerts   prometheus.Counter
	notifyFailures   prometheus.Counter
	matchesConfirmed prometheus.Counter

	// Replies
	replies          *prometheus.CounterVec
	repliesDuplicate prometheus.Counter

	// Sweeps
	sweepDuration    *prometheus.HistogramVec
	sweepInvitations *prometheus.CounterVec

	// Ratings
	ratingUpdates *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "rally",
		subsystem:        "matchmaking",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		customLabels:     make(map[string]string),
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
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
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

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	m.matchesCreated = m.counter("matches_created_total", "Total number of match requests accepted")
	m.invitationsSent = m.counterVec("invitations_total", "Invitations claimed by initial status", "status")
	m.claimOutcomes = m.counterVec("claim_outcomes_total", "Atomic claim outcomes", "outcome")
	m.rankingLatency = promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "ranking_latency_milliseconds",
		Help:        "Time to filter and rank a candidate pool",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	})
	m.deadpoolAlerts = m.counter("deadpool_alerts_total", "Organizer notifications about an exhausted candidate pool")
	m.notifyFailures = m.counter("notify_failures_total", "Outbound notifications that could not be delivered")
	m.matchesConfirmed = m.counter("matches_confirmed_total", "Matches that filled all seats")

	m.replies = m.counterVec("replies_total", "Inbound replies by intent", "intent")
	m.repliesDuplicate = m.counter("replies_duplicate_total", "Inbound replies dropped as redeliveries")

	m.sweepDuration = m.histogramVec("sweep_duration_milliseconds", "Duration of periodic sweeps", "sweep")
	m.sweepInvitations = m.counterVec("sweep_invitations_total", "Invitations handled by periodic sweeps", "sweep")

	m.ratingUpdates = m.counterVec("rating_updates_total", "Rating updates applied", "kind")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds",
		"endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component",
		"component", "error_type")
}

// RecordMatchCreated increments the created matches counter.
func RecordMatchCreated() {
	if globalManager.enabled {
		globalManager.matchesCreated.Inc()
	}
}

// RecordInvitation counts a claimed invitation by its initial status.
func RecordInvitation(status string) {
	if globalManager.enabled {
		globalManager.invitationsSent.WithLabelValues(status).Inc()
	}
}

// RecordClaimOutcome counts one atomic claim attempt.
func RecordClaimOutcome(outcome string) {
	if globalManager.enabled {
		globalManager.claimOutcomes.WithLabelValues(outcome).Inc()
	}
}

// RecordRankingLatency records candidate ranking latency in milliseconds.
func RecordRankingLatency(latencyMs float64) {
	if globalManager.enabled {
		globalManager.rankingLatency.Observe(latencyMs)
	}
}

// RecordDeadpoolAlert increments the deadpool counter.
func RecordDeadpoolAlert() {
	if globalManager.enabled {
		globalManager.deadpoolAlerts.Inc()
	}
}

// RecordNotifyFailure increments the failed notification counter.
func RecordNotifyFailure() {
	if globalManager.enabled {
		globalManager.notifyFailures.Inc()
	}
}

// RecordMatchConfirmed increments the confirmed matches counter.
func RecordMatchConfirmed() {
	if globalManager.enabled {
		globalManager.matchesConfirmed.Inc()
	}
}

// RecordReply counts an inbound reply by intent kind.
func RecordReply(intent string) {
	if globalManager.enabled {
		globalManager.replies.WithLabelValues(intent).Inc()
	}
}

// RecordReplyDuplicate increments the duplicate replies counter.
func RecordReplyDuplicate() {
	if globalManager.enabled {
		globalManager.repliesDuplicate.Inc()
	}
}

// RecordSweep records one sweep run and how many invitations it handled.
func RecordSweep(sweep string, handled int, durationMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.sweepDuration.WithLabelValues(sweep).Observe(durationMs)
	globalManager.sweepInvitations.WithLabelValues(sweep).Add(float64(handled))
}

// RecordRatingUpdate counts a rating update; kind is "new" or "correction".
func RecordRatingUpdate(kind string) {
	if globalManager.enabled {
		globalManager.ratingUpdates.WithLabelValues(kind).Inc()
	}
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if globalManager.enabled {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if globalManager.enabled {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if globalManager.enabled {
		globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// Configure replaces the global manager with one built from opts on a fresh
// registry. Call it before GetRegistry is handed to an HTTP handler.
func Configure(opts ...Option) {
	customRegistry = prometheus.NewRegistry()
	globalManager = NewManager(append([]Option{WithPrometheusRegistry(customRegistry)}, opts...)...)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
