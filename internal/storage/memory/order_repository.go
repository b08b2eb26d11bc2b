package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/florist/internal/domain"
)

// orderRepositoryInMemory — in-memory реализация OrderRepository.
// Уникальность номера и платёжного идентификатора проверяется под тем же мьютексом, что и запись.
type orderRepositoryInMemory struct {
	mu          sync.RWMutex
	byNumber    map[string]domain.Order
	byReference map[string]string

	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
// outbox и timeline могут быть nil, тогда события не сохраняются.
func NewOrderRepository(outbox domain.OutboxRepository, timeline domain.TimelineRepository) domain.OrderRepository {
	return &orderRepositoryInMemory{
		byNumber:    make(map[string]domain.Order),
		byReference: make(map[string]string),
		outbox:      outbox,
		timeline:    timeline,
	}
}

// Create сохраняет новый заказ вместе с событиями.
func (r *orderRepositoryInMemory) Create(ctx context.Context, order domain.Order, events []domain.OrderEvent) error {
	if err := order.CheckInvariants(); err != nil {
		return err
	}
	messages, err := buildOutboxMessages(order, events)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byNumber[order.Number]; exists {
		return domain.ErrOrderNumberExists
	}
	ref := strings.TrimSpace(order.PaymentReference)
	if ref != "" {
		if _, exists := r.byReference[ref]; exists {
			return domain.ErrPaymentReferenceExists
		}
	}

	order.Version = 1
	r.byNumber[order.Number] = cloneOrder(order)
	if ref != "" {
		r.byReference[ref] = order.Number
	}
	return r.appendEvents(ctx, order, events, messages)
}

// Get возвращает заказ по номеру или ErrOrderNotFound.
func (r *orderRepositoryInMemory) Get(_ context.Context, number string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.byNumber[number]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// GetByPaymentReference ищет заказ по идентификатору платежа.
func (r *orderRepositoryInMemory) GetByPaymentReference(_ context.Context, reference string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	number, ok := r.byReference[strings.TrimSpace(reference)]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(r.byNumber[number]), nil
}

// Update применяет mutate к копии заказа и сохраняет её, если были события.
func (r *orderRepositoryInMemory) Update(ctx context.Context, number string, mutate domain.OrderMutation) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byNumber[number]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}

	updated := cloneOrder(current)
	events, err := mutate(&updated)
	if err != nil {
		return cloneOrder(current), err
	}
	if len(events) == 0 {
		return cloneOrder(current), nil
	}

	ref := strings.TrimSpace(updated.PaymentReference)
	if ref != "" && ref != current.PaymentReference {
		if owner, exists := r.byReference[ref]; exists && owner != number {
			return cloneOrder(current), domain.ErrPaymentReferenceExists
		}
	}

	messages, err := buildOutboxMessages(updated, events)
	if err != nil {
		return cloneOrder(current), err
	}

	updated.Version = current.Version + 1
	r.byNumber[number] = cloneOrder(updated)
	if ref != "" {
		r.byReference[ref] = number
	}
	if err := r.appendEvents(ctx, updated, events, messages); err != nil {
		return domain.Order{}, err
	}
	return updated, nil
}

func (r *orderRepositoryInMemory) appendEvents(ctx context.Context, order domain.Order, events []domain.OrderEvent, messages []domain.OutboxMessage) error {
	if r.outbox != nil {
		for _, msg := range messages {
			if _, err := r.outbox.Enqueue(ctx, msg); err != nil {
				return err
			}
		}
	}
	if r.timeline != nil {
		for _, event := range events {
			if err := r.timeline.Append(ctx, domain.NewTimelineEvent(order, event)); err != nil {
				return err
			}
		}
	}
	return nil
}

func buildOutboxMessages(order domain.Order, events []domain.OrderEvent) ([]domain.OutboxMessage, error) {
	messages := make([]domain.OutboxMessage, 0, len(events))
	for _, event := range events {
		msg, err := domain.NewOutboxMessage(order, event)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Items = append([]domain.OrderItem(nil), src.Items...)
	return dst
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
