package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics tracks how outbox rows leave the relay.
type OutboxMetrics struct {
	relayed *prometheus.CounterVec
	lag     *prometheus.HistogramVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	relayed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_relayed_total",
		Help: "Outbox rows handled by the relay, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	lag := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbox_publish_lag_seconds",
		Help:    "Time between an outbox row being written and published.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 15, 60, 300, 1800},
	}, []string{"event_type"})
	reg.MustRegister(relayed, lag)
	return &OutboxMetrics{relayed: relayed, lag: lag}
}

// Relayed counts one row with its outcome (published, deferred, dead_lettered).
func (m *OutboxMetrics) Relayed(eventType, outcome string) {
	if m == nil || m.relayed == nil {
		return
	}
	m.relayed.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (m *OutboxMetrics) ObserveLag(eventType string, lag time.Duration) {
	if m == nil || m.lag == nil || lag < 0 {
		return
	}
	m.lag.WithLabelValues(normalizeLabel(eventType)).Observe(lag.Seconds())
}
