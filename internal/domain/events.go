package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OrderEventType — тип доменного события заказа.
type OrderEventType string

const (
	OrderEventCreated   OrderEventType = "order.created"
	OrderEventPaid      OrderEventType = "order.paid"
	OrderEventConfirmed OrderEventType = "order.confirmed"
	OrderEventFailed    OrderEventType = "order.failed"
	OrderEventRefunded  OrderEventType = "order.refunded"
	OrderEventCancelled OrderEventType = "order.cancelled"
	OrderEventCompleted OrderEventType = "order.completed"
)

// OutboxAggregateOrder — тип агрегата для сообщений outbox.
const OutboxAggregateOrder = "order"

// OrderEvent описывает изменение заказа. Сохраняется в outbox и таймлайн
// в той же транзакции, что и сам заказ.
type OrderEvent struct {
	Type     OrderEventType
	Reason   string
	Occurred time.Time
}

// NewOrderEvent создаёт событие с временем в UTC.
func NewOrderEvent(eventType OrderEventType, reason string, at time.Time) OrderEvent {
	return OrderEvent{Type: eventType, Reason: reason, Occurred: at.UTC()}
}

// OrderEventPayload — тело сообщения outbox.
type OrderEventPayload struct {
	EventType        OrderEventType `json:"event_type"`
	OrderID          string         `json:"order_id"`
	OrderNumber      string         `json:"order_number"`
	State            OrderState     `json:"state"`
	PaymentStatus    PaymentStatus  `json:"payment_status"`
	Status           OrderStatus    `json:"status"`
	PaymentMethod    PaymentMethod  `json:"payment_method"`
	PaymentReference string         `json:"payment_reference,omitempty"`
	TotalMinor       int64          `json:"total_minor"`
	Currency         string         `json:"currency"`
	Reason           string         `json:"reason,omitempty"`
	OccurredAt       time.Time      `json:"occurred_at"`
}

// NewOutboxMessage превращает событие заказа в сообщение outbox.
func NewOutboxMessage(order Order, event OrderEvent) (OutboxMessage, error) {
	payload, err := json.Marshal(OrderEventPayload{
		EventType:        event.Type,
		OrderID:          order.ID,
		OrderNumber:      order.Number,
		State:            order.State,
		PaymentStatus:    order.PaymentStatus(),
		Status:           order.LifecycleStatus(),
		PaymentMethod:    order.PaymentMethod,
		PaymentReference: order.PaymentReference,
		TotalMinor:       order.TotalMinor,
		Currency:         order.Currency,
		Reason:           event.Reason,
		OccurredAt:       event.Occurred,
	})
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal order event payload: %w", err)
	}
	return OutboxMessage{
		ID:            uuid.NewString(),
		AggregateType: OutboxAggregateOrder,
		AggregateID:   order.Number,
		EventType:     string(event.Type),
		Payload:       payload,
	}, nil
}

// NewTimelineEvent превращает событие заказа в запись таймлайна.
func NewTimelineEvent(order Order, event OrderEvent) TimelineEvent {
	return TimelineEvent{
		OrderNumber: order.Number,
		Type:        string(event.Type),
		State:       order.State,
		Reason:      event.Reason,
		Occurred:    event.Occurred,
	}
}
