package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation — некорректные входные данные клиента (корзина, контакты, доставка).
	ErrValidation = errors.New("validation failed")
	// ErrProductNotFound возвращается каталогом, если товара нет или он снят с продажи.
	ErrProductNotFound = errors.New("product not found")
	// ErrAmountMismatch — сумма, списанная шлюзом, не совпадает с рассчитанной на сервере.
	ErrAmountMismatch = errors.New("captured amount does not match order total")
	// ErrPaymentNotSucceeded — шлюз сообщает, что платёж ещё не завершён.
	ErrPaymentNotSucceeded = errors.New("payment not succeeded")
	// ErrCurrencyUnavailable — нет ни одного курса для нужной валютной пары.
	ErrCurrencyUnavailable = errors.New("exchange rate unavailable")
	// ErrSignatureInvalid — подпись webhook отсутствует или не прошла проверку.
	ErrSignatureInvalid = errors.New("webhook signature invalid")
	// ErrNotificationFailed — уведомление не отправлено; наружу не пробрасывается.
	ErrNotificationFailed = errors.New("notification dispatch failed")
	// ErrGatewayUnavailable — временная ошибка или таймаут платёжного шлюза.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrPaymentReferenceExists — заказ с таким платёжным идентификатором уже создан.
	ErrPaymentReferenceExists = errors.New("order with payment reference already exists")
	// ErrOrderNumberExists — коллизия номера заказа.
	ErrOrderNumberExists = errors.New("order number already exists")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrInvalidTransition — переход между состояниями заказа запрещён.
	ErrInvalidTransition = errors.New("invalid order state transition")
	// ErrManualConfirmNotAllowed — ручное подтверждение допустимо только для перевода PayMe.
	ErrManualConfirmNotAllowed = errors.New("manual confirmation is not allowed for this payment method")
	// ErrWebhookEventAlreadyProcessed — событие с таким идентификатором уже обработано.
	ErrWebhookEventAlreadyProcessed = errors.New("webhook event already processed")
	// ErrWebhookEventNotFound возвращается при попытке освободить отсутствующую запись.
	ErrWebhookEventNotFound = errors.New("webhook event not found")
	// ErrIdempotencyKeyRequired — пустой ключ идемпотентности.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — не передан хэш тела запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyHashMismatch — ключ уже использован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// ErrIdempotencyKeyAlreadyExists — ключ идемпотентности уже зарегистрирован.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyKeyNotFound — запись по ключу отсутствует или истекла.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyConflict — тот же ключ пришёл с другим телом запроса или ещё обрабатывается.
	ErrIdempotencyConflict = errors.New("idempotency key conflict")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// ValidationError описывает ошибку пользовательского ввода; сообщение показывается клиенту.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError создаёт ошибку валидации для поля.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Is позволяет сравнивать через errors.Is(err, ErrValidation).
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// AmountMismatchError содержит ожидаемую и фактически списанную сумму.
type AmountMismatchError struct {
	ExpectedMinor int64
	CapturedMinor int64
	Currency      string
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("captured amount %d %s does not match expected %d %s",
		e.CapturedMinor, e.Currency, e.ExpectedMinor, e.Currency)
}

func (e *AmountMismatchError) Is(target error) bool {
	return target == ErrAmountMismatch
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsValidation проверяет, относится ли ошибка к пользовательскому вводу.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsDuplicate сообщает, что ошибка означает уже существующую запись
// (заказ по платёжному идентификатору или обработанное webhook-событие).
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrPaymentReferenceExists) || errors.Is(err, ErrWebhookEventAlreadyProcessed)
}
