package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/florist/internal/domain"
)

func TestNewOutboxMessage(t *testing.T) {
	order := makeOrder()
	now := time.Date(2026, 4, 12, 11, 0, 0, 0, time.UTC)
	_, _ = order.MarkPaid("pi_42", now)

	msg, err := domain.NewOutboxMessage(order, domain.NewOrderEvent(domain.OrderEventPaid, "webhook", now))
	if err != nil {
		t.Fatalf("NewOutboxMessage: %v", err)
	}
	if msg.ID == "" || msg.AggregateID != order.Number || msg.EventType != "order.paid" {
		t.Fatalf("unexpected message %+v", msg)
	}

	var payload domain.OrderEventPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.PaymentStatus != domain.PaymentStatusPaid || payload.Status != domain.OrderStatusProcessing {
		t.Fatalf("unexpected statuses in payload: %+v", payload)
	}
	if payload.PaymentReference != "pi_42" || payload.Reason != "webhook" {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	timeline := domain.NewTimelineEvent(order, domain.NewOrderEvent(domain.OrderEventPaid, "webhook", now))
	if timeline.OrderNumber != order.Number || timeline.State != domain.OrderStatePaid {
		t.Fatalf("unexpected timeline event %+v", timeline)
	}
}
