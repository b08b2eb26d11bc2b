package kafka

import (
	"encoding/json"
	"time"
)

// Topics для Kafka
const (
	TopicOrderEvents    = "florist.order.events"
	TopicOrderEventsDLQ = "florist.order.events.dlq"
	TopicNotifications  = "florist.notifications"
)

// Kafka headers
const (
	HeaderEventType     = "x-event-type"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OutboxEnvelope — формат сообщения с событием заказа.
type OutboxEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NotificationLine — строка заказа в письме.
type NotificationLine struct {
	Name           string `json:"name"`
	Quantity       int32  `json:"quantity"`
	LineTotalMinor int64  `json:"line_total_minor"`
}

// NotificationMessage — задание почтовому сервису на отправку подтверждения.
type NotificationMessage struct {
	Kind        string             `json:"kind"`
	OrderNumber string             `json:"order_number"`
	Recipient   string             `json:"recipient"`
	Name        string             `json:"name"`
	Language    string             `json:"language"`
	Subject     string             `json:"subject"`
	Lines       []NotificationLine `json:"lines"`
	TotalMinor  int64              `json:"total_minor"`
	Currency    string             `json:"currency"`
	PaidAt      string             `json:"paid_at,omitempty"`
	QueuedAt    time.Time          `json:"queued_at"`
}
