package linebot

import "github.com/prometheus/client_golang/prometheus"

// Results of the events counter.
const (
	resultHandled   = "handled"
	resultDuplicate = "duplicate"
	resultIgnored   = "ignored"
	resultThrottled = "throttled"
	resultFailed    = "failed"
)

// Metrics counts webhook events.
type Metrics struct {
	events *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "linebilling",
				Subsystem: "linebot",
				Name:      "events_total",
				Help:      "Webhook events by type and result",
			},
			[]string{"type", "result"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.events)
	}
	return m
}

func (m *Metrics) event(eventType, result string) {
	m.events.WithLabelValues(eventType, result).Inc()
}

// Events returns the events counter.
func (m *Metrics) Events() *prometheus.CounterVec { return m.events }
