package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector holds all Prometheus metrics for shellguide.
// Uses a custom registry, never the global one.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// Executor metrics.
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	StepsTotal        *prometheus.CounterVec
	RefusalsTotal     *prometheus.CounterVec

	// Lesson metrics.
	FeedbackTotal         *prometheus.CounterVec
	LessonsCompletedTotal *prometheus.CounterVec
	HintsRevealedTotal    prometheus.Counter

	// Session metrics.
	ActiveSessions prometheus.Gauge

	// HTTP gateway metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// System metrics.
	ActiveRequests prometheus.Gauge
}

// NewMetricsCollector creates a MetricsCollector with all metrics registered
// on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		ExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shellguide",
			Subsystem: "executor",
			Name:      "executions_total",
			Help:      "Total command lines handled by the executor.",
		}, []string{"status"}),

		ExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shellguide",
			Subsystem: "executor",
			Name:      "execution_duration_seconds",
			Help:      "Command line execution duration in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}, []string{"status"}),

		StepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shellguide",
			Subsystem: "executor",
			Name:      "steps_total",
			Help:      "Total chain steps executed, by command.",
		}, []string{"command", "status"}),

		RefusalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shellguide",
			Subsystem: "executor",
			Name:      "refusals_total",
			Help:      "Command lines refused before execution, by reason.",
		}, []string{"reason"}),

		FeedbackTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shellguide",
			Subsystem: "lesson",
			Name:      "feedback_total",
			Help:      "Evaluated attempts, by lesson and feedback kind.",
		}, []string{"lesson", "kind"}),

		LessonsCompletedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shellguide",
			Subsystem: "lesson",
			Name:      "completed_total",
			Help:      "Lessons completed.",
		}, []string{"lesson"}),

		HintsRevealedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shellguide",
			Subsystem: "lesson",
			Name:      "hints_revealed_total",
			Help:      "Hints revealed after repeated wrong attempts.",
		}),

		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shellguide",
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of live learner sessions.",
		}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shellguide",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "path", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shellguide",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shellguide",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),
	}

	// Register all collectors.
	reg.MustRegister(
		m.ExecutionsTotal,
		m.ExecutionDuration,
		m.StepsTotal,
		m.RefusalsTotal,
		m.FeedbackTotal,
		m.LessonsCompletedTotal,
		m.HintsRevealedTotal,
		m.ActiveSessions,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActiveRequests,
	)

	return m
}
