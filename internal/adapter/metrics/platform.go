package metrics

import "github.com/prometheus/client_golang/prometheus"

// PlatformMetrics tracks calls to the deployment platform and its circuit breakers.
type PlatformMetrics struct {
	RequestDuration   *prometheus.HistogramVec
	BreakerState      *prometheus.GaugeVec
	BreakerTransition *prometheus.CounterVec
}

func NewPlatformMetrics(reg prometheus.Registerer) *PlatformMetrics {
	m := &PlatformMetrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "platform",
			Name:      "request_duration_seconds",
			Help:      "Duration of deployment platform calls, by operation and outcome.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"operation", "outcome"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "circuit_breaker",
			Name:      "state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}, []string{"component"}),
		BreakerTransition: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "circuit_breaker",
			Name:      "transitions_total",
			Help:      "Circuit breaker state transitions, by component and new state.",
		}, []string{"component", "state"}),
	}

	reg.MustRegister(m.RequestDuration, m.BreakerState, m.BreakerTransition)
	return m
}

// RecordBreaker records a transition of the named breaker into state.
func (m *PlatformMetrics) RecordBreaker(component, state string, value float64) {
	m.BreakerTransition.WithLabelValues(component, state).Inc()
	m.BreakerState.WithLabelValues(component).Set(value)
}
