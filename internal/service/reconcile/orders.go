package reconcile

import (
	"context"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/florist/internal/domain"
)

// PaymentStatusView — ответ для опроса статуса оплаты.
type PaymentStatusView struct {
	OrderNumber   string
	PaymentStatus domain.PaymentStatus
	Status        domain.OrderStatus
	PaymentMethod domain.PaymentMethod
	TotalMinor    int64
	Currency      string
	PaidAt        time.Time
}

// GetOrder возвращает заказ по номеру.
func (e *Engine) GetOrder(ctx context.Context, orderNumber string) (domain.Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return e.orders.Get(ctx, orderNumber)
}

// PaymentStatus возвращает статус оплаты заказа.
func (e *Engine) PaymentStatus(ctx context.Context, orderNumber string) (PaymentStatusView, error) {
	order, err := e.GetOrder(ctx, orderNumber)
	if err != nil {
		return PaymentStatusView{}, err
	}
	return PaymentStatusView{
		OrderNumber:   order.Number,
		PaymentStatus: order.PaymentStatus(),
		Status:        order.LifecycleStatus(),
		PaymentMethod: order.PaymentMethod,
		TotalMinor:    order.TotalMinor,
		Currency:      order.Currency,
		PaidAt:        order.PaidAt,
	}, nil
}

// CancelOrder отменяет неоплаченный заказ.
func (e *Engine) CancelOrder(ctx context.Context, orderNumber string) (domain.Order, error) {
	return e.transition(ctx, orderNumber, domain.OrderEventCancelled, func(o *domain.Order, now time.Time) (bool, error) {
		return o.Cancel(now)
	})
}

// CompleteOrder отмечает оплаченный заказ исполненным.
func (e *Engine) CompleteOrder(ctx context.Context, orderNumber string) (domain.Order, error) {
	return e.transition(ctx, orderNumber, domain.OrderEventCompleted, func(o *domain.Order, now time.Time) (bool, error) {
		return o.Complete(now)
	})
}

func (e *Engine) transition(
	ctx context.Context,
	orderNumber string,
	eventType domain.OrderEventType,
	apply func(*domain.Order, time.Time) (bool, error),
) (domain.Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	var changed bool
	updated, err := e.orders.Update(ctx, orderNumber, func(o *domain.Order) ([]domain.OrderEvent, error) {
		now := e.now()
		ok, err := apply(o, now)
		if err != nil || !ok {
			return nil, err
		}
		changed = true
		return []domain.OrderEvent{domain.NewOrderEvent(eventType, "admin", now)}, nil
	})
	if err != nil {
		e.logger.WithError(err).WithField("order_number", orderNumber).Warn("order transition rejected")
		return domain.Order{}, err
	}
	if changed {
		e.metrics.RecordTransition(string(updated.State))
		e.logger.WithField("order_number", orderNumber).WithField("state", updated.State).Info("order state changed")
	}
	return updated, nil
}
