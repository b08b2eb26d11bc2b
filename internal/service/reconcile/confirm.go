package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vladislavdragonenkov/florist/internal/domain"
	"github.com/vladislavdragonenkov/florist/internal/metrics"
	"github.com/vladislavdragonenkov/florist/internal/service/currency"
)

// ConfirmResult — итог синхронного подтверждения.
type ConfirmResult struct {
	Order domain.Order
	// Created=false означает, что заказ по этому платежу уже существовал.
	Created bool
}

// ConfirmOrder создаёт оплаченный заказ по успешному платёжному намерению.
// Повторный вызов с тем же reference возвращает существующий заказ.
func (e *Engine) ConfirmOrder(ctx context.Context, reference string, req domain.CheckoutRequest) (result ConfirmResult, err error) {
	ctx, span := e.startSpan(ctx, "ConfirmOrder")
	defer func() { finishSpan(span, err) }()
	defer e.metrics.ObserveDuration(metrics.EntryConfirm, time.Now())

	reference = strings.TrimSpace(reference)
	span.SetAttributes(attribute.String("payment.reference", reference))
	if reference == "" {
		e.metrics.RecordSignal(metrics.EntryConfirm, metrics.ResultRejected)
		return ConfirmResult{}, domain.NewValidationError("payment_intent_id", "is required")
	}
	logger := e.logger.WithField("payment_reference", reference)

	intent, err := e.gateway.GetIntent(ctx, reference)
	if err != nil {
		e.metrics.RecordSignal(metrics.EntryConfirm, metrics.ResultError)
		return ConfirmResult{}, gatewayError("get payment intent", err)
	}

	existing, found, err := e.findByReference(ctx, reference)
	if err != nil {
		e.metrics.RecordSignal(metrics.EntryConfirm, metrics.ResultError)
		return ConfirmResult{}, err
	}
	if found {
		e.metrics.RecordSignal(metrics.EntryConfirm, metrics.ResultDuplicate)
		logger.WithField("order_number", existing.Number).Info("order already exists for payment")
		return ConfirmResult{Order: existing}, nil
	}

	if intent.Status != domain.IntentStatusSucceeded {
		e.metrics.RecordSignal(metrics.EntryConfirm, metrics.ResultRejected)
		return ConfirmResult{}, fmt.Errorf("%w: status %s", domain.ErrPaymentNotSucceeded, intent.Status)
	}

	quote, err := e.quoter.Quote(ctx, req)
	if err != nil {
		e.metrics.RecordSignal(metrics.EntryConfirm, metrics.ResultRejected)
		return ConfirmResult{}, err
	}

	method := domain.DetectPaymentMethod(intent.Method)
	settlementCurrency := e.settlement.For(method, quote.Currency)
	intentCurrency := domain.NormalizeCurrency(intent.Currency)
	if intentCurrency != settlementCurrency {
		e.rejectAmount(logger, "settlement currency mismatch")
		return ConfirmResult{}, fmt.Errorf("%w: paid in %s, %s settles in %s",
			domain.ErrAmountMismatch, intentCurrency, method, settlementCurrency)
	}

	expected, rate, err := e.expectedAmount(ctx, quote, intent)
	if err != nil {
		e.metrics.RecordSignal(metrics.EntryConfirm, metrics.ResultError)
		return ConfirmResult{}, err
	}
	if err := checkCaptured(expected, intent.CapturedMinor, intentCurrency); err != nil {
		e.rejectAmount(logger.WithFields(log.Fields{
			"expected_minor": expected,
			"captured_minor": intent.CapturedMinor,
		}), "captured amount mismatch")
		return ConfirmResult{}, err
	}

	now := e.now()
	order := domain.NewOrder(quote, now)
	order.PaymentMethod = method
	order.PaymentReference = reference
	order.SettlementCurrency = intentCurrency
	order.SettlementTotalMinor = expected
	order.ExchangeRate = rate
	if _, err := order.MarkPaid(reference, now); err != nil {
		return ConfirmResult{}, err
	}
	order.MarkConfirmed(now)

	events := []domain.OrderEvent{
		domain.NewOrderEvent(domain.OrderEventCreated, "", now),
		domain.NewOrderEvent(domain.OrderEventPaid, string(method), now),
		domain.NewOrderEvent(domain.OrderEventConfirmed, "", now),
	}
	if err := e.createOrder(ctx, &order, events); err != nil {
		if errors.Is(err, domain.ErrPaymentReferenceExists) {
			existing, getErr := e.orders.GetByPaymentReference(ctx, reference)
			if getErr != nil {
				e.metrics.RecordSignal(metrics.EntryConfirm, metrics.ResultError)
				return ConfirmResult{}, fmt.Errorf("load order after duplicate confirm: %w", getErr)
			}
			e.metrics.RecordSignal(metrics.EntryConfirm, metrics.ResultDuplicate)
			logger.WithField("order_number", existing.Number).Info("concurrent confirm converged on existing order")
			return ConfirmResult{Order: existing}, nil
		}
		e.metrics.RecordSignal(metrics.EntryConfirm, metrics.ResultError)
		logger.WithError(err).Error("create paid order failed")
		return ConfirmResult{}, err
	}

	e.metrics.RecordSignal(metrics.EntryConfirm, metrics.ResultApplied)
	e.metrics.RecordOrderCreated(metrics.EntryConfirm)
	e.metrics.RecordTransition(string(domain.OrderStatePaid))
	span.SetAttributes(attribute.String("order.number", order.Number))
	logger.WithFields(log.Fields{
		"order_number":   order.Number,
		"payment_method": method,
	}).Info("order created as paid")

	e.notify(ctx, order)
	return ConfirmResult{Order: order, Created: true}, nil
}

func (e *Engine) findByReference(ctx context.Context, reference string) (domain.Order, bool, error) {
	order, err := e.orders.GetByPaymentReference(ctx, reference)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return domain.Order{}, false, nil
	}
	if err != nil {
		return domain.Order{}, false, fmt.Errorf("load order by payment reference: %w", err)
	}
	return order, true, nil
}

func (e *Engine) rejectAmount(logger *log.Entry, msg string) {
	e.metrics.RecordSignal(metrics.EntryConfirm, metrics.ResultRejected)
	e.metrics.RecordAmountMismatch()
	logger.Warn(msg)
}

// expectedAmount рассчитывает ожидаемую сумму в валюте намерения.
// Для другой валюты используется курс, записанный в metadata при создании намерения,
// а если его нет, то последний сохранённый курс.
func (e *Engine) expectedAmount(ctx context.Context, quote domain.Quote, intent domain.Intent) (int64, decimal.Decimal, error) {
	display := domain.NormalizeCurrency(quote.Currency)
	settlement := domain.NormalizeCurrency(intent.Currency)
	if display == settlement {
		return quote.TotalMinor, decimal.Decimal{}, nil
	}

	if rate, ok := rateFromMetadata(intent.Metadata, settlement, display); ok {
		amount, err := currency.ConvertWith(quote.TotalMinor, display, settlement, rate)
		if err != nil {
			return 0, decimal.Decimal{}, err
		}
		return amount, rate.Rate, nil
	}

	if e.rates == nil {
		return 0, decimal.Decimal{}, fmt.Errorf("%w: %s/%s", domain.ErrCurrencyUnavailable, display, settlement)
	}
	conv, err := e.rates.Convert(ctx, quote.TotalMinor, display, settlement)
	if err != nil {
		return 0, decimal.Decimal{}, err
	}
	return conv.AmountMinor, conv.Rate.Rate, nil
}

// rateFromMetadata восстанавливает курс из metadata намерения.
// Без пары считается, что курс записан как 1 settlement = rate display.
func rateFromMetadata(meta map[string]string, settlement, display string) (domain.ExchangeRate, bool) {
	raw := strings.TrimSpace(meta[domain.IntentMetaExchangeRate])
	if raw == "" {
		return domain.ExchangeRate{}, false
	}
	value, err := decimal.NewFromString(raw)
	if err != nil || !value.IsPositive() {
		return domain.ExchangeRate{}, false
	}

	rate := domain.ExchangeRate{Base: settlement, Target: display, Rate: value}
	if pair := meta[domain.IntentMetaExchangePair]; pair != "" {
		base, target, ok := strings.Cut(pair, "/")
		if !ok {
			return domain.ExchangeRate{}, false
		}
		rate.Base = domain.NormalizeCurrency(base)
		rate.Target = domain.NormalizeCurrency(target)
	}
	return rate, true
}
