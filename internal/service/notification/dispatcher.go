// Package notification формирует подтверждения заказов и передаёт их отправителю.
package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/florist/internal/domain"
)

const (
	defaultTimeout = 5 * time.Second
	paidAtLayout   = "2006-01-02 15:04"
)

// Option настраивает Dispatcher.
type Option func(*Dispatcher)

// WithTimeout ограничивает время одной отправки.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithLocation задаёт часовой пояс для времени оплаты в письме.
func WithLocation(loc *time.Location) Option {
	return func(d *Dispatcher) {
		if loc != nil {
			d.location = loc
		}
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Dispatcher реализует domain.Notifier. Повторных попыток не делает.
type Dispatcher struct {
	sender   domain.NotificationSender
	timeout  time.Duration
	location *time.Location
	logger   *log.Entry
}

// NewDispatcher создаёт Dispatcher поверх sender.
func NewDispatcher(sender domain.NotificationSender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sender:   sender,
		timeout:  defaultTimeout,
		location: time.UTC,
		logger:   log.WithField("component", "notification-dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OrderConfirmed отправляет подтверждение заказа клиенту.
func (d *Dispatcher) OrderConfirmed(ctx context.Context, order domain.Order) error {
	if d.sender == nil {
		return fmt.Errorf("%w: sender is not configured", domain.ErrNotificationFailed)
	}
	if order.Customer.Email == "" {
		return fmt.Errorf("%w: order %s has no recipient", domain.ErrNotificationFailed, order.Number)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	notification := Build(order, d.location)
	if err := d.sender.Send(ctx, notification); err != nil {
		if errors.Is(err, domain.ErrNotificationFailed) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrNotificationFailed, err)
	}

	d.logger.WithFields(log.Fields{
		"order_number": order.Number,
		"language":     notification.Language,
	}).Info("order confirmation dispatched")
	return nil
}

// Build собирает уведомление из заказа.
func Build(order domain.Order, loc *time.Location) domain.Notification {
	if loc == nil {
		loc = time.UTC
	}
	language := order.Language
	if language != domain.LanguageCantonese {
		language = domain.LanguageEnglish
	}

	lines := make([]domain.NotificationLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, domain.NotificationLine{
			Name:           item.ProductName,
			Quantity:       item.Quantity,
			LineTotalMinor: item.LineTotalMinor,
		})
	}

	var paidAt string
	if !order.PaidAt.IsZero() {
		paidAt = order.PaidAt.In(loc).Format(paidAtLayout)
	}

	return domain.Notification{
		OrderNumber: order.Number,
		Recipient:   order.Customer.Email,
		Name:        order.Customer.Name,
		Language:    language,
		Subject:     Subject(language, order.Number),
		Lines:       lines,
		TotalMinor:  order.TotalMinor,
		Currency:    order.Currency,
		PaidAt:      paidAt,
	}
}

// Subject возвращает тему письма на языке клиента.
func Subject(language domain.Language, orderNumber string) string {
	if language == domain.LanguageCantonese {
		return "訂單確認 - " + orderNumber
	}
	return "Order Confirmation - " + orderNumber
}

var _ domain.Notifier = (*Dispatcher)(nil)
