// Package metrics содержит prometheus-метрики сверки платежей.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Источники платёжных сигналов.
const (
	EntryConfirm  = "confirm"
	EntryWebhook  = "webhook"
	EntryManual   = "manual"
	EntryTransfer = "transfer"
)

// Результаты обработки сигнала.
const (
	ResultApplied   = "applied"
	ResultDuplicate = "duplicate"
	ResultRejected  = "rejected"
	ResultError     = "error"
	ResultIgnored   = "ignored"
)

// ReconcileMetrics — метрики движка сверки.
type ReconcileMetrics struct {
	signals              *prometheus.CounterVec
	duplicatesSuppressed *prometheus.CounterVec
	ordersCreated        *prometheus.CounterVec
	transitions          *prometheus.CounterVec
	amountMismatches     prometheus.Counter
	notifications        *prometheus.CounterVec
	duration             *prometheus.HistogramVec
}

// NewReconcileMetrics регистрирует метрики в DefaultRegisterer.
func NewReconcileMetrics() *ReconcileMetrics {
	return NewReconcileMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewReconcileMetricsWithRegisterer регистрирует метрики в указанном registry.
func NewReconcileMetricsWithRegisterer(registerer prometheus.Registerer) *ReconcileMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &ReconcileMetrics{
		signals: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "florist_payment_signals_total",
			Help: "Payment signals processed, grouped by entry point and result.",
		}, []string{"entry", "result"}),
		duplicatesSuppressed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "florist_duplicates_suppressed_total",
			Help: "Duplicate payment signals that converged on an existing state.",
		}, []string{"entry"}),
		ordersCreated: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "florist_orders_created_total",
			Help: "Orders persisted, grouped by entry point.",
		}, []string{"entry"}),
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "florist_order_transitions_total",
			Help: "Order state transitions, grouped by target state.",
		}, []string{"state"}),
		amountMismatches: registerCounter(registerer, prometheus.CounterOpts{
			Name: "florist_amount_mismatch_total",
			Help: "Payments rejected because the captured amount did not match the order total.",
		}),
		notifications: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "florist_notifications_total",
			Help: "Order confirmation notifications, grouped by result.",
		}, []string{"result"}),
		duration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "florist_reconcile_duration_seconds",
			Help:    "Duration of reconciliation entry points in seconds.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"entry"}),
	}
}

// RecordSignal учитывает обработанный сигнал.
func (m *ReconcileMetrics) RecordSignal(entry, result string) {
	if m == nil {
		return
	}
	m.signals.WithLabelValues(entry, result).Inc()
	if result == ResultDuplicate {
		m.duplicatesSuppressed.WithLabelValues(entry).Inc()
	}
}

// RecordOrderCreated учитывает новый заказ.
func (m *ReconcileMetrics) RecordOrderCreated(entry string) {
	if m == nil {
		return
	}
	m.ordersCreated.WithLabelValues(entry).Inc()
}

// RecordTransition учитывает переход заказа в state.
func (m *ReconcileMetrics) RecordTransition(state string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(state).Inc()
}

// RecordAmountMismatch учитывает отклонённый по сумме платёж.
func (m *ReconcileMetrics) RecordAmountMismatch() {
	if m == nil {
		return
	}
	m.amountMismatches.Inc()
}

// RecordNotification учитывает результат отправки уведомления.
func (m *ReconcileMetrics) RecordNotification(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.notifications.WithLabelValues("sent").Inc()
		return
	}
	m.notifications.WithLabelValues("failed").Inc()
}

// ObserveDuration записывает длительность точки входа.
func (m *ReconcileMetrics) ObserveDuration(entry string, started time.Time) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(entry).Observe(time.Since(started).Seconds())
}
