package domain

import (
	"context"
	"time"
)

// PaymentGateway описывает взаимодействие с платёжным шлюзом (карты, кошельки, redirect-методы).
type PaymentGateway interface {
	// CreateIntent создаёт платёжное намерение на сумму в валюте расчёта.
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	// GetIntent возвращает актуальный статус, списанную сумму и фактический способ оплаты.
	GetIntent(ctx context.Context, reference string) (Intent, error)
	// VerifyWebhook проверяет подпись и разбирает событие. При неверной подписи возвращает ErrSignatureInvalid.
	VerifyWebhook(payload []byte, signatureHeader string) (GatewayEvent, error)
}

// ProductCatalog — внешний каталог товаров.
type ProductCatalog interface {
	// GetProducts возвращает найденные товары по идентификаторам; отсутствующие просто не попадают в map.
	GetProducts(ctx context.Context, ids []int64) (map[int64]Product, error)
}

// ExchangeRateRepository хранит историю курсов.
type ExchangeRateRepository interface {
	Append(ctx context.Context, rate ExchangeRate) (ExchangeRate, error)
	// Latest возвращает последнюю запись по паре или ErrCurrencyUnavailable.
	Latest(ctx context.Context, base, target string) (ExchangeRate, error)
	History(ctx context.Context, base, target string, limit int) ([]ExchangeRate, error)
	// PruneBefore удаляет записи старше before, сохраняя последнюю запись каждой пары.
	PruneBefore(ctx context.Context, before time.Time) (int, error)
}

// WebhookEventRepository — журнал дедупликации webhook-событий.
type WebhookEventRepository interface {
	// Record атомарно регистрирует событие. Если оно уже есть, возвращает
	// существующую запись и ErrWebhookEventAlreadyProcessed.
	Record(ctx context.Context, event ProcessedWebhookEvent) (ProcessedWebhookEvent, error)
	// Release удаляет запись, чтобы повторная доставка могла обработать событие заново.
	Release(ctx context.Context, eventID string) error
}

// Notifier отправляет подтверждение заказа клиенту.
type Notifier interface {
	OrderConfirmed(ctx context.Context, order Order) error
}

// NotificationSender передаёт готовое уведомление во внешний почтовый сервис.
type NotificationSender interface {
	Send(ctx context.Context, notification Notification) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderNumber string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	// Release удаляет ключ в статусе processing, чтобы повтор запроса выполнился заново.
	Release(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
