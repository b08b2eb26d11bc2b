package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/vladislavdragonenkov/florist/internal/domain"
	"github.com/vladislavdragonenkov/florist/internal/metrics"
)

// ManualOutcome описывает итог ручного подтверждения.
type ManualOutcome string

const (
	OutcomeConfirmed            ManualOutcome = "confirmed"
	OutcomeAlreadyConfirmed     ManualOutcome = "already_confirmed"
	OutcomeConfirmedWithWarning ManualOutcome = "confirmed_with_warning"
)

// ManualResult возвращается администратору после подтверждения перевода.
type ManualResult struct {
	Order   domain.Order
	Success bool
	Outcome ManualOutcome
}

// BatchItem — результат по одному заказу из пакета.
type BatchItem struct {
	OrderNumber string
	Result      ManualResult
	Err         error
}

// BatchResult — итог пакетного подтверждения.
type BatchResult struct {
	Items     []BatchItem
	Confirmed int
	Skipped   int
	Warnings  int
	Failed    int
}

// ConfirmManual подтверждает оплату перевода PayMe по решению администратора.
// Сумма не проверяется: администратор сверяет перевод сам.
func (e *Engine) ConfirmManual(ctx context.Context, orderNumber string) (result ManualResult, err error) {
	ctx, span := e.startSpan(ctx, "ConfirmManual")
	defer func() { finishSpan(span, err) }()
	defer e.metrics.ObserveDuration(metrics.EntryManual, time.Now())

	orderNumber = strings.TrimSpace(orderNumber)
	span.SetAttributes(attribute.String("order.number", orderNumber))
	if orderNumber == "" {
		return ManualResult{}, domain.NewValidationError("order_number", "is required")
	}
	logger := e.logger.WithField("order_number", orderNumber)

	order, err := e.orders.Get(ctx, orderNumber)
	if err != nil {
		if !errors.Is(err, domain.ErrOrderNotFound) {
			e.metrics.RecordSignal(metrics.EntryManual, metrics.ResultError)
		}
		return ManualResult{}, err
	}
	if !order.PaymentMethod.PeerTransfer() {
		e.metrics.RecordSignal(metrics.EntryManual, metrics.ResultRejected)
		logger.WithField("payment_method", order.PaymentMethod).Warn("manual confirmation rejected")
		return ManualResult{}, fmt.Errorf("%w: order %s paid with %s",
			domain.ErrManualConfirmNotAllowed, orderNumber, order.PaymentMethod)
	}
	if order.State.IsPaid() {
		e.metrics.RecordSignal(metrics.EntryManual, metrics.ResultDuplicate)
		logger.Info("order already confirmed")
		return ManualResult{Order: order, Success: true, Outcome: OutcomeAlreadyConfirmed}, nil
	}

	updated, changed, err := e.markPaid(ctx, orderNumber, "", "")
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			e.metrics.RecordSignal(metrics.EntryManual, metrics.ResultRejected)
			logger.WithField("state", order.State).Warn("manual confirmation for closed order")
		} else {
			e.metrics.RecordSignal(metrics.EntryManual, metrics.ResultError)
		}
		return ManualResult{}, err
	}
	if !changed {
		e.metrics.RecordSignal(metrics.EntryManual, metrics.ResultDuplicate)
		return ManualResult{Order: updated, Success: true, Outcome: OutcomeAlreadyConfirmed}, nil
	}

	e.metrics.RecordSignal(metrics.EntryManual, metrics.ResultApplied)
	logger.Info("transfer confirmed by admin")
	if !e.notify(ctx, updated) {
		return ManualResult{Order: updated, Success: true, Outcome: OutcomeConfirmedWithWarning}, nil
	}
	return ManualResult{Order: updated, Success: true, Outcome: OutcomeConfirmed}, nil
}

// ConfirmManualBatch подтверждает несколько заказов по очереди.
// Ошибка одного заказа не останавливает обработку остальных.
func (e *Engine) ConfirmManualBatch(ctx context.Context, orderNumbers []string) (BatchResult, error) {
	seen := make(map[string]struct{}, len(orderNumbers))
	numbers := make([]string, 0, len(orderNumbers))
	for _, number := range orderNumbers {
		number = strings.TrimSpace(number)
		if number == "" {
			continue
		}
		if _, dup := seen[number]; dup {
			continue
		}
		seen[number] = struct{}{}
		numbers = append(numbers, number)
	}
	if len(numbers) == 0 {
		return BatchResult{}, domain.NewValidationError("order_numbers", "at least one order number is required")
	}

	result := BatchResult{Items: make([]BatchItem, 0, len(numbers))}
	for _, number := range numbers {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		res, err := e.ConfirmManual(ctx, number)
		result.Items = append(result.Items, BatchItem{OrderNumber: number, Result: res, Err: err})
		switch {
		case err != nil:
			result.Failed++
		case res.Outcome == OutcomeAlreadyConfirmed:
			result.Skipped++
		case res.Outcome == OutcomeConfirmedWithWarning:
			result.Confirmed++
			result.Warnings++
		default:
			result.Confirmed++
		}
	}

	e.logger.WithField("confirmed", result.Confirmed).
		WithField("skipped", result.Skipped).
		WithField("failed", result.Failed).
		Info("batch transfer confirmation finished")
	return result, nil
}
