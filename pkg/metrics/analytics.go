package metrics

import "github.com/prometheus/client_golang/prometheus"

// AnalyticsMetrics counts ledger messages handled by the analytics worker.
type AnalyticsMetrics struct {
	messages *prometheus.CounterVec
}

func NewAnalyticsMetrics(reg prometheus.Registerer) *AnalyticsMetrics {
	if reg == nil {
		return &AnalyticsMetrics{}
	}
	messages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "analytics",
		Name:      "messages_total",
		Help:      "Ledger messages consumed, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	reg.MustRegister(messages)
	return &AnalyticsMetrics{messages: messages}
}

// RecordMessage counts one message; outcome is recorded, duplicate, skipped,
// invalid or retried.
func (m *AnalyticsMetrics) RecordMessage(eventType, outcome string) {
	if m == nil || m.messages == nil {
		return
	}
	m.messages.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
