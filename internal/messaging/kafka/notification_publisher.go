package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/florist/internal/domain"
)

const notificationKindOrderConfirmed = "order_confirmed"

// NotificationPublisher ставит уведомления в очередь почтового сервиса.
type NotificationPublisher struct {
	producer *Producer
	topic    string
}

// NewNotificationPublisher создаёт отправителя уведомлений через Kafka.
func NewNotificationPublisher(producer *Producer, topic string) *NotificationPublisher {
	if topic == "" {
		topic = TopicNotifications
	}
	return &NotificationPublisher{producer: producer, topic: topic}
}

// Send публикует уведомление. Отменённый ctx означает, что отправка уже не нужна.
func (p *NotificationPublisher) Send(ctx context.Context, n domain.Notification) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka notification publisher is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	lines := make([]NotificationLine, 0, len(n.Lines))
	for _, line := range n.Lines {
		lines = append(lines, NotificationLine{
			Name:           line.Name,
			Quantity:       line.Quantity,
			LineTotalMinor: line.LineTotalMinor,
		})
	}

	msg := NotificationMessage{
		Kind:        notificationKindOrderConfirmed,
		OrderNumber: n.OrderNumber,
		Recipient:   n.Recipient,
		Name:        n.Name,
		Language:    string(n.Language),
		Subject:     n.Subject,
		Lines:       lines,
		TotalMinor:  n.TotalMinor,
		Currency:    n.Currency,
		PaidAt:      n.PaidAt,
		QueuedAt:    time.Now().UTC(),
	}
	return p.producer.PublishEvent(p.topic, n.OrderNumber, msg, header(HeaderEventType, notificationKindOrderConfirmed))
}

var _ domain.NotificationSender = (*NotificationPublisher)(nil)
