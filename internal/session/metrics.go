package session

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the idle session reaper.
type Metrics struct {
	SessionsReaped prometheus.Counter
	SweepDuration  prometheus.Histogram
}

// NewMetrics creates and registers reaper metrics.
// Returns nil if reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		SessionsReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shellguide",
			Subsystem: "reaper",
			Name:      "sessions_reaped_total",
			Help:      "Total sessions closed for being idle.",
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "shellguide",
			Subsystem: "reaper",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of each idle session sweep.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}

	reg.MustRegister(
		m.SessionsReaped,
		m.SweepDuration,
	)

	return m
}
