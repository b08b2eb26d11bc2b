package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	var metric dto.Metric
	if err := vec.WithLabelValues(labels...).Write(&metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return metric.GetCounter().GetValue()
}

func TestRecordSignalCountsDuplicates(t *testing.T) {
	m := NewReconcileMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordSignal(EntryWebhook, ResultApplied)
	m.RecordSignal(EntryWebhook, ResultDuplicate)
	m.RecordSignal(EntryWebhook, ResultDuplicate)

	if got := counterValue(t, m.signals, EntryWebhook, ResultApplied); got != 1 {
		t.Fatalf("applied signals = %v, want 1", got)
	}
	if got := counterValue(t, m.duplicatesSuppressed, EntryWebhook); got != 2 {
		t.Fatalf("duplicates suppressed = %v, want 2", got)
	}
}

func TestRecordNotificationAndMismatch(t *testing.T) {
	m := NewReconcileMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordNotification(true)
	m.RecordNotification(false)
	m.RecordAmountMismatch()
	m.RecordOrderCreated(EntryConfirm)
	m.RecordTransition("paid")
	m.ObserveDuration(EntryConfirm, time.Now().Add(-10*time.Millisecond))

	if got := counterValue(t, m.notifications, "failed"); got != 1 {
		t.Fatalf("failed notifications = %v, want 1", got)
	}
	var metric dto.Metric
	if err := m.amountMismatches.Write(&metric); err != nil {
		t.Fatalf("write mismatch counter: %v", err)
	}
	if metric.GetCounter().GetValue() != 1 {
		t.Fatalf("amount mismatches = %v, want 1", metric.GetCounter().GetValue())
	}
	if got := counterValue(t, m.ordersCreated, EntryConfirm); got != 1 {
		t.Fatalf("orders created = %v, want 1", got)
	}
}

func TestRegisterReusesExistingCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := NewReconcileMetricsWithRegisterer(reg)
	second := NewReconcileMetricsWithRegisterer(reg)
	if first.signals != second.signals {
		t.Fatal("second registration must reuse existing collector")
	}
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *ReconcileMetrics
	m.RecordSignal(EntryManual, ResultApplied)
	m.RecordNotification(false)
	m.ObserveDuration(EntryManual, time.Now())
}
