package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vladislavdragonenkov/florist/internal/domain"
	"github.com/vladislavdragonenkov/florist/internal/metrics"
)

// HandleWebhook проверяет и применяет событие шлюза.
// Повторная доставка того же события возвращает nil и ничего не меняет.
// При ошибке хранилища запись дедупликации снимается, чтобы шлюз повторил доставку.
func (e *Engine) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) (err error) {
	ctx, span := e.startSpan(ctx, "HandleWebhook")
	defer func() { finishSpan(span, err) }()
	defer e.metrics.ObserveDuration(metrics.EntryWebhook, time.Now())

	event, err := e.gateway.VerifyWebhook(payload, signatureHeader)
	if err != nil {
		e.metrics.RecordSignal(metrics.EntryWebhook, metrics.ResultRejected)
		e.logger.WithError(err).Warn("webhook rejected")
		if errors.Is(err, domain.ErrSignatureInvalid) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrSignatureInvalid, err)
	}
	span.SetAttributes(
		attribute.String("webhook.event_id", event.ID),
		attribute.String("webhook.event_type", event.Type),
	)
	if event.ID == "" {
		e.metrics.RecordSignal(metrics.EntryWebhook, metrics.ResultRejected)
		return domain.NewValidationError("id", "webhook event id is required")
	}

	logger := e.logger.WithFields(log.Fields{
		"event_id":          event.ID,
		"event_type":        event.Type,
		"payment_reference": event.PaymentReference,
	})

	_, err = e.webhooks.Record(ctx, domain.ProcessedWebhookEvent{
		EventID:     event.ID,
		EventType:   event.Type,
		ProcessedAt: e.now(),
	})
	if errors.Is(err, domain.ErrWebhookEventAlreadyProcessed) {
		e.metrics.RecordSignal(metrics.EntryWebhook, metrics.ResultDuplicate)
		logger.Warn("duplicate webhook event suppressed")
		return nil
	}
	if err != nil {
		e.metrics.RecordSignal(metrics.EntryWebhook, metrics.ResultError)
		logger.WithError(err).Error("record webhook event failed")
		return fmt.Errorf("record webhook event: %w", err)
	}

	result, err := e.applyEvent(ctx, event, logger)
	if err != nil {
		e.metrics.RecordSignal(metrics.EntryWebhook, metrics.ResultError)
		logger.WithError(err).Error("webhook processing failed")
		if releaseErr := e.webhooks.Release(context.WithoutCancel(ctx), event.ID); releaseErr != nil {
			logger.WithError(releaseErr).Error("release webhook event failed")
		}
		return err
	}
	e.metrics.RecordSignal(metrics.EntryWebhook, result)
	return nil
}

func (e *Engine) applyEvent(ctx context.Context, event domain.GatewayEvent, logger *log.Entry) (string, error) {
	if event.Kind == domain.GatewayEventOther {
		logger.Debug("webhook event ignored")
		return metrics.ResultIgnored, nil
	}
	if event.PaymentReference == "" {
		logger.Warn("webhook event without payment reference")
		return metrics.ResultIgnored, nil
	}

	order, found, err := e.findByReference(ctx, event.PaymentReference)
	if err != nil {
		return "", err
	}
	if !found {
		logger.Warn("no order for webhook payment reference")
		return metrics.ResultIgnored, nil
	}
	logger = logger.WithField("order_number", order.Number)

	switch event.Kind {
	case domain.GatewayEventSucceeded:
		return e.applySucceeded(ctx, order, event, logger)
	case domain.GatewayEventFailed:
		return e.applyTransition(ctx, order.Number, logger, domain.OrderEventFailed, func(o *domain.Order, now time.Time) (bool, error) {
			return o.MarkFailed(now)
		})
	case domain.GatewayEventRefunded:
		return e.applyTransition(ctx, order.Number, logger, domain.OrderEventRefunded, func(o *domain.Order, now time.Time) (bool, error) {
			return o.MarkRefunded(now)
		})
	default:
		return metrics.ResultIgnored, nil
	}
}

// applySucceeded повторно сверяет сумму со шлюзом и переводит заказ в paid.
func (e *Engine) applySucceeded(ctx context.Context, order domain.Order, event domain.GatewayEvent, logger *log.Entry) (string, error) {
	if order.State.IsPaid() {
		logger.Debug("order already paid")
		return metrics.ResultDuplicate, nil
	}

	intent, err := e.gateway.GetIntent(ctx, event.PaymentReference)
	if err != nil {
		return "", gatewayError("get payment intent", err)
	}
	if intent.Status != domain.IntentStatusSucceeded {
		logger.WithField("intent_status", intent.Status).Warn("succeeded event for unsettled intent")
		return metrics.ResultRejected, nil
	}
	expected := order.SettlementTotalMinor
	if domain.NormalizeCurrency(intent.Currency) != order.SettlementCurrency {
		e.metrics.RecordAmountMismatch()
		logger.WithField("intent_currency", intent.Currency).Warn("webhook currency mismatch")
		return metrics.ResultRejected, nil
	}
	if err := checkCaptured(expected, intent.CapturedMinor, order.SettlementCurrency); err != nil {
		e.metrics.RecordAmountMismatch()
		logger.WithError(err).Warn("webhook amount mismatch")
		return metrics.ResultRejected, nil
	}

	method := domain.DetectPaymentMethod(event.Method)
	if event.Method == (domain.MethodDetails{}) {
		method = domain.DetectPaymentMethod(intent.Method)
	}
	updated, changed, err := e.markPaid(ctx, order.Number, event.PaymentReference, method)
	if errors.Is(err, domain.ErrInvalidTransition) {
		logger.WithField("state", order.State).Warn("paid signal for closed order ignored")
		return metrics.ResultIgnored, nil
	}
	if err != nil {
		return "", err
	}
	if !changed {
		return metrics.ResultDuplicate, nil
	}
	logger.Info("order marked paid by webhook")
	e.notify(ctx, updated)
	return metrics.ResultApplied, nil
}

// markPaid — единая операция перевода заказа в paid вместе с confirmed_at.
// Пустой method оставляет способ оплаты заказа без изменений.
func (e *Engine) markPaid(ctx context.Context, number, reference string, method domain.PaymentMethod) (domain.Order, bool, error) {
	var changed bool
	updated, err := e.orders.Update(ctx, number, func(o *domain.Order) ([]domain.OrderEvent, error) {
		now := e.now()
		ok, err := o.MarkPaid(reference, now)
		if err != nil || !ok {
			return nil, err
		}
		if method != "" && !o.PaymentMethod.PeerTransfer() {
			o.PaymentMethod = method
		}
		events := []domain.OrderEvent{domain.NewOrderEvent(domain.OrderEventPaid, string(o.PaymentMethod), now)}
		if o.MarkConfirmed(now) {
			events = append(events, domain.NewOrderEvent(domain.OrderEventConfirmed, "", now))
		}
		changed = true
		return events, nil
	})
	if err != nil {
		return updated, false, err
	}
	if changed {
		e.metrics.RecordTransition(string(domain.OrderStatePaid))
	}
	return updated, changed, nil
}

func (e *Engine) applyTransition(
	ctx context.Context,
	number string,
	logger *log.Entry,
	eventType domain.OrderEventType,
	apply func(*domain.Order, time.Time) (bool, error),
) (string, error) {
	var changed bool
	updated, err := e.orders.Update(ctx, number, func(o *domain.Order) ([]domain.OrderEvent, error) {
		now := e.now()
		ok, err := apply(o, now)
		if err != nil || !ok {
			return nil, err
		}
		changed = true
		return []domain.OrderEvent{domain.NewOrderEvent(eventType, "gateway", now)}, nil
	})
	if errors.Is(err, domain.ErrInvalidTransition) {
		logger.WithError(err).Warn("webhook transition ignored")
		return metrics.ResultIgnored, nil
	}
	if err != nil {
		return "", err
	}
	if !changed {
		return metrics.ResultDuplicate, nil
	}
	e.metrics.RecordTransition(string(updated.State))
	logger.WithField("state", updated.State).Info("order state changed by webhook")
	return metrics.ResultApplied, nil
}
