package domain

import "context"

// OrderMutation изменяет заказ внутри транзакции и возвращает события изменения.
// Пустой список событий означает, что заказ не изменился и сохранять нечего.
type OrderMutation func(order *Order) ([]OrderEvent, error)

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create атомарно сохраняет заказ, позиции, outbox и таймлайн.
	// Возвращает ErrPaymentReferenceExists или ErrOrderNumberExists при нарушении уникальности.
	Create(ctx context.Context, order Order, events []OrderEvent) error
	// Get возвращает заказ по номеру или ErrOrderNotFound.
	Get(ctx context.Context, number string) (Order, error)
	// GetByPaymentReference ищет заказ по идентификатору платежа шлюза.
	GetByPaymentReference(ctx context.Context, reference string) (Order, error)
	// Update блокирует заказ, применяет mutate и сохраняет результат в одной транзакции.
	Update(ctx context.Context, number string, mutate OrderMutation) (Order, error)
}
