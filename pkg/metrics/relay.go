package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RelayMetrics tracks how outbox rows leave the database.
type RelayMetrics struct {
	outcomes *prometheus.CounterVec
	batches  prometheus.Histogram
	lag      prometheus.Histogram
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	if reg == nil {
		return &RelayMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "rows_total",
		Help:      "Outbox rows handled by the relay, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	batches := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent draining one non-empty batch.",
		Buckets:   prometheus.DefBuckets,
	})
	lag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "publish_lag_seconds",
		Help:      "Delay between commit and successful publish.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
	})
	reg.MustRegister(outcomes, batches, lag)
	return &RelayMetrics{outcomes: outcomes, batches: batches, lag: lag}
}

// RecordOutcome counts one row as published, retried or dead_lettered.
func (m *RelayMetrics) RecordOutcome(eventType, outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (m *RelayMetrics) ObserveBatch(d time.Duration) {
	if m == nil || m.batches == nil {
		return
	}
	m.batches.Observe(d.Seconds())
}

func (m *RelayMetrics) ObservePublishLag(d time.Duration) {
	if m == nil || m.lag == nil || d < 0 {
		return
	}
	m.lag.Observe(d.Seconds())
}
