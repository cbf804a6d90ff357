// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Session metrics
	Transitions          *prometheus.CounterVec
	ValidationsSubmitted prometheus.Counter
	ExercisesLoaded      prometheus.Counter
	StaleNotifications   prometheus.Counter
	IgnoredNotifications *prometheus.CounterVec

	// Remote call metrics
	RPCCallLatency             *prometheus.HistogramVec
	RPCCallErrors              *prometheus.CounterVec
	ContentFetches             *prometheus.CounterVec
	ActiveAccountSubscriptions prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "tradetrainer"
	}

	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Exercise state transitions by source and target state",
		}, []string{"from", "to"}),
		ValidationsSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "validations_submitted_total",
			Help:      "Total number of validations accepted by the program",
		}),
		ExercisesLoaded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "exercises_loaded_total",
			Help:      "Total number of exercises made current",
		}),
		StaleNotifications: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "stale_notifications_total",
			Help:      "Account notifications dropped because their slot was not newer",
		}),
		IgnoredNotifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "ignored_notifications_total",
			Help:      "Account notifications ignored by reason",
		}, []string{"reason"}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "RPC call latency in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method"}),
		RPCCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_errors_total",
			Help:      "RPC calls that failed after retries",
		}, []string{"method"}),
		ContentFetches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "content",
			Name:      "fetches_total",
			Help:      "Content gateway fetches by kind and status",
		}, []string{"kind", "status"}),
		ActiveAccountSubscriptions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "account_subscriptions",
			Help:      "Number of live account subscriptions",
		}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTransition counts a state transition.
func RecordTransition(from, to string) {
	DefaultMetrics.Transitions.WithLabelValues(from, to).Inc()
}

// RecordValidationSubmitted counts an accepted validation.
func RecordValidationSubmitted() {
	DefaultMetrics.ValidationsSubmitted.Inc()
}

// RecordExerciseLoaded counts an exercise made current.
func RecordExerciseLoaded() {
	DefaultMetrics.ExercisesLoaded.Inc()
}

// RecordStaleNotification counts a notification dropped by slot ordering.
func RecordStaleNotification() {
	DefaultMetrics.StaleNotifications.Inc()
}

// RecordIgnoredNotification counts a notification ignored for reason.
func RecordIgnoredNotification(reason string) {
	DefaultMetrics.IgnoredNotifications.WithLabelValues(reason).Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordRPCError counts a failed RPC call.
func RecordRPCError(method string) {
	DefaultMetrics.RPCCallErrors.WithLabelValues(method).Inc()
}

// RecordContentFetch counts a gateway fetch.
func RecordContentFetch(kind, status string) {
	DefaultMetrics.ContentFetches.WithLabelValues(kind, status).Inc()
}

// AddAccountSubscriptions adjusts the live subscription gauge by delta.
func AddAccountSubscriptions(delta float64) {
	DefaultMetrics.ActiveAccountSubscriptions.Add(delta)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
