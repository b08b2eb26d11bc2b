// Package reconcile сводит платёжные сигналы (подтверждение клиента, webhook шлюза,
// ручное подтверждение администратора) к одному состоянию заказа.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/florist/internal/domain"
	"github.com/vladislavdragonenkov/florist/internal/metrics"
	"github.com/vladislavdragonenkov/florist/internal/service/currency"
)

const (
	// maxNumberAttempts: сколько раз генерируется номер заказа при коллизии.
	maxNumberAttempts = 3
	// amountTolerance: допустимое превышение списанной суммы (в минимальных единицах).
	amountTolerance = 1
	tracerName      = "github.com/vladislavdragonenkov/florist/internal/service/reconcile"
)

// Quoter пересчитывает корзину по ценам каталога.
type Quoter interface {
	Quote(ctx context.Context, req domain.CheckoutRequest) (domain.Quote, error)
}

// Dependencies — обязательные зависимости Engine.
type Dependencies struct {
	Orders   domain.OrderRepository
	Webhooks domain.WebhookEventRepository
	Gateway  domain.PaymentGateway
	Quoter   Quoter
	Rates    *currency.Store
	// Notifier может быть nil, тогда подтверждения не отправляются.
	Notifier domain.Notifier
}

// Option настраивает Engine.
type Option func(*Engine)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics задаёт метрики; без них Engine ничего не считает.
func WithMetrics(m *metrics.ReconcileMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTracer задаёт tracer вместо глобального.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		if tracer != nil {
			e.tracer = tracer
		}
	}
}

// WithSettlement задаёт валюты расчёта по способам оплаты.
func WithSettlement(settlement currency.Settlement) Option {
	return func(e *Engine) {
		if settlement != nil {
			e.settlement = settlement
		}
	}
}

// WithPayMePhone задаёт номер получателя переводов PayMe.
func WithPayMePhone(phone string) Option {
	return func(e *Engine) {
		e.paymePhone = phone
	}
}

// Engine — движок сверки платежей.
type Engine struct {
	orders   domain.OrderRepository
	webhooks domain.WebhookEventRepository
	gateway  domain.PaymentGateway
	quoter   Quoter
	rates    *currency.Store
	notifier domain.Notifier

	settlement currency.Settlement
	paymePhone string

	metrics *metrics.ReconcileMetrics
	logger  *log.Entry
	tracer  trace.Tracer
	now     func() time.Time
}

// New создаёт Engine.
func New(deps Dependencies, opts ...Option) *Engine {
	e := &Engine{
		orders:     deps.Orders,
		webhooks:   deps.Webhooks,
		gateway:    deps.Gateway,
		quoter:     deps.Quoter,
		rates:      deps.Rates,
		notifier:   deps.Notifier,
		settlement: currency.DefaultSettlement(),
		logger:     log.WithField("component", "reconcile"),
		tracer:     otel.Tracer(tracerName),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "reconcile."+name)
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// notify отправляет подтверждение после фиксации транзакции. Ошибка не пробрасывается.
func (e *Engine) notify(ctx context.Context, order domain.Order) bool {
	if e.notifier == nil {
		return true
	}
	err := e.notifier.OrderConfirmed(context.WithoutCancel(ctx), order)
	e.metrics.RecordNotification(err == nil)
	if err != nil {
		e.logger.WithError(err).WithField("order_number", order.Number).Warn("order confirmation not sent")
		return false
	}
	return true
}

// createOrder сохраняет новый заказ, перегенерируя номер при коллизии.
func (e *Engine) createOrder(ctx context.Context, order *domain.Order, events []domain.OrderEvent) error {
	var err error
	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		err = e.orders.Create(ctx, *order, events)
		if !errors.Is(err, domain.ErrOrderNumberExists) {
			return err
		}
		e.logger.WithFields(log.Fields{
			"order_number": order.Number,
			"attempt":      attempt,
		}).Warn("order number collision")
		order.Number = domain.NewOrderNumber(e.now())
	}
	return fmt.Errorf("create order after %d attempts: %w", maxNumberAttempts, err)
}

// gatewayError приводит ошибку шлюза к ErrGatewayUnavailable, кроме ошибок ввода.
func gatewayError(op string, err error) error {
	if domain.IsValidation(err) || errors.Is(err, domain.ErrGatewayUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, domain.ErrGatewayUnavailable, err)
}

// checkCaptured сверяет списанную сумму с ожидаемой.
func checkCaptured(expected, captured int64, currency string) error {
	if captured < expected || captured > expected+amountTolerance {
		return &domain.AmountMismatchError{
			ExpectedMinor: expected,
			CapturedMinor: captured,
			Currency:      currency,
		}
	}
	return nil
}
