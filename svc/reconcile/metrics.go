package reconcile

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels of the operations counter.
const (
	outcomeSuccess = "success"
	outcomePartial = "partial"
	outcomeError   = "error"
)

// Metrics instruments reconciliation passes.
type Metrics struct {
	operations *prometheus.CounterVec
	drift      *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "linebilling",
				Subsystem: "reconcile",
				Name:      "operations_total",
				Help:      "Reconciliation operations by kind and outcome",
			},
			[]string{"operation", "outcome"},
		),
		drift: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "linebilling",
				Subsystem: "reconcile",
				Name:      "drift_total",
				Help:      "Detected differences between local and provider billing state",
			},
			[]string{"operation", "repaired"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "linebilling",
				Subsystem: "reconcile",
				Name:      "duration_seconds",
				Help:      "Duration of reconciliation operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.drift, m.duration)
	}
	return m
}

func (m *Metrics) observe(op, outcome string, d time.Duration) {
	m.operations.WithLabelValues(op, outcome).Inc()
	m.duration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) driftDetected(op string, repaired bool) {
	label := "false"
	if repaired {
		label = "true"
	}
	m.drift.WithLabelValues(op, label).Inc()
}

// Operations returns the operations counter, for tests and dashboards.
func (m *Metrics) Operations() *prometheus.CounterVec { return m.operations }

// Drift returns the drift counter.
func (m *Metrics) Drift() *prometheus.CounterVec { return m.drift }
