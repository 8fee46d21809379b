package metrics

import "github.com/prometheus/client_golang/prometheus"

// Status sync outcomes.
const (
	SyncUnchanged    = "unchanged"
	SyncChanged      = "changed"
	SyncFetchError   = "fetch_error"
	SyncPersistError = "persist_error"
)

// SyncMetrics tracks read-path status reconciliation and env-var propagation.
type SyncMetrics struct {
	Outcomes       *prometheus.CounterVec
	StickyRunning  prometheus.Counter
	EnvVarFailures prometheus.Counter
}

func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	m := &SyncMetrics{
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "status_sync",
			Name:      "outcomes_total",
			Help:      "Status sync results per application, by outcome.",
		}, []string{"outcome"}),
		StickyRunning: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "status_sync",
			Name:      "exited_kept_running_total",
			Help:      "Times an exited platform status was kept as RUNNING because the application has a domain.",
		}),
		EnvVarFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "platform",
			Name:      "env_var_failures_total",
			Help:      "Environment variables that could not be pushed to the platform.",
		}),
	}

	reg.MustRegister(m.Outcomes, m.StickyRunning, m.EnvVarFailures)
	return m
}
