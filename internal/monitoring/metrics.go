package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Decision metrics
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decision_engine_decisions_total",
			Help: "Total number of committed decisions by reason",
		},
		[]string{"reason"},
	)

	decisionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "decision_engine_decision_duration_seconds",
			Help:    "Time spent deciding a single signal",
			Buckets: prometheus.DefBuckets,
		},
	)

	duplicateSignals = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "decision_engine_duplicate_signals_total",
			Help: "Signals short-circuited by the ledger as already recorded",
		},
	)

	// Order metrics
	ordersSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "decision_engine_orders_submitted_total",
			Help: "Approved decisions handed to the order sink",
		},
	)

	// Risk metrics
	marginUtilization = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "decision_engine_margin_utilization_pct",
			Help: "Projected margin utilization after the latest approved decision",
		},
	)

	// Failure metrics
	infrastructureFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decision_engine_infrastructure_failures_total",
			Help: "Infrastructure failures by component",
		},
		[]string{"component"},
	)

	invariantViolations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "decision_engine_invariant_violations_total",
			Help: "Fatal invariant violations (e.g. duplicate ledger commit)",
		},
	)
)

func init() {
	prometheus.MustRegister(decisionsTotal)
	prometheus.MustRegister(decisionDuration)
	prometheus.MustRegister(duplicateSignals)
	prometheus.MustRegister(ordersSubmitted)
	prometheus.MustRegister(marginUtilization)
	prometheus.MustRegister(infrastructureFailures)
	prometheus.MustRegister(invariantViolations)
}

// MetricsHandler handles the Prometheus metrics endpoint
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// ServeHTTP serves the Prometheus metrics endpoint
func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// RecordDecision records a committed decision and its duration in seconds
func RecordDecision(reason string, seconds float64) {
	decisionsTotal.WithLabelValues(reason).Inc()
	decisionDuration.Observe(seconds)
}

// RecordDuplicate records a ledger short-circuit
func RecordDuplicate() {
	duplicateSignals.Inc()
}

// RecordOrderSubmitted records an order-sink handoff
func RecordOrderSubmitted() {
	ordersSubmitted.Inc()
}

// UpdateMarginUtilization updates the projected utilization gauge
func UpdateMarginUtilization(pct float64) {
	marginUtilization.Set(pct)
}

// RecordInfrastructureFailure records a failed external call
func RecordInfrastructureFailure(component string) {
	infrastructureFailures.WithLabelValues(component).Inc()
}

// RecordInvariantViolation records a fatal invariant violation
func RecordInvariantViolation() {
	invariantViolations.Inc()
}
