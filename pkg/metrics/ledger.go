package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "loyalty"

// LedgerMetrics tracks point movements and notification delivery.
type LedgerMetrics struct {
	transactions *prometheus.CounterVec
	points       *prometheus.CounterVec
	rejected     *prometheus.CounterVec
	notifyDrops  prometheus.Counter
	notifyFails  *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	transactions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transactions_total",
		Help:      "Committed ledger transactions by type.",
	}, []string{"type"})
	points := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "points_moved_total",
		Help:      "Absolute points applied to balances by transaction type.",
	}, []string{"type"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transactions_rejected_total",
		Help:      "Ledger operations rejected before commit, by operation and error code.",
	}, []string{"operation", "code"})
	drops := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_dropped_total",
		Help:      "Notifications dropped because the dispatch buffer was full.",
	})
	fails := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notification_delivery_failures_total",
		Help:      "Notification deliveries that failed, by backend.",
	}, []string{"backend"})
	reg.MustRegister(transactions, points, rejected, drops, fails)
	return &LedgerMetrics{
		transactions: transactions,
		points:       points,
		rejected:     rejected,
		notifyDrops:  drops,
		notifyFails:  fails,
	}
}

// RecordTransaction counts one committed transaction and the points it applied.
func (m *LedgerMetrics) RecordTransaction(txType string, applied int) {
	if m == nil || m.transactions == nil {
		return
	}
	label := normalizeLabel(txType)
	m.transactions.WithLabelValues(label).Inc()
	if applied < 0 {
		applied = -applied
	}
	m.points.WithLabelValues(label).Add(float64(applied))
}

func (m *LedgerMetrics) RecordRejected(operation, code string) {
	if m == nil || m.rejected == nil {
		return
	}
	m.rejected.WithLabelValues(normalizeLabel(operation), normalizeLabel(code)).Inc()
}

func (m *LedgerMetrics) IncNotificationDropped() {
	if m == nil || m.notifyDrops == nil {
		return
	}
	m.notifyDrops.Inc()
}

func (m *LedgerMetrics) IncNotificationFailure(backend string) {
	if m == nil || m.notifyFails == nil {
		return
	}
	m.notifyFails.WithLabelValues(normalizeLabel(backend)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
