package executor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace  = "schemamigrate"
	executorSubsystem = "executor"
)

// Metrics collects executor counters and latencies
type Metrics struct {
	runs     prometheus.Counter
	actions  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers executor metrics with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		runs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: executorSubsystem,
			Name:      "runs_total",
			Help:      "Migration runs started",
		}),
		actions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: executorSubsystem,
			Name:      "actions_total",
			Help:      "Actions executed by kind and status",
		}, []string{"kind", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: executorSubsystem,
			Name:      "action_duration_seconds",
			Help:      "Time spent executing one action",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),
	}
}

func (m *Metrics) observe(kind string, o Outcome) {
	if m == nil {
		return
	}
	status := "success"
	if !o.OK {
		status = "failure"
	}
	m.actions.WithLabelValues(kind, status).Inc()
	m.duration.WithLabelValues(kind).Observe(o.Duration.Seconds())
}

func (m *Metrics) runStarted() {
	if m == nil {
		return
	}
	m.runs.Inc()
}
