package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/florist/internal/domain"
)

type webhookEventRepositoryInMemory struct {
	mu     sync.Mutex
	events map[string]domain.ProcessedWebhookEvent
}

// NewWebhookEventRepository создаёт in-memory журнал дедупликации webhook-событий.
func NewWebhookEventRepository() domain.WebhookEventRepository {
	return &webhookEventRepositoryInMemory{events: make(map[string]domain.ProcessedWebhookEvent)}
}

// Record регистрирует событие или возвращает уже существующую запись.
func (r *webhookEventRepositoryInMemory) Record(_ context.Context, event domain.ProcessedWebhookEvent) (domain.ProcessedWebhookEvent, error) {
	event.EventID = strings.TrimSpace(event.EventID)
	if event.EventID == "" {
		return domain.ProcessedWebhookEvent{}, domain.NewValidationError("event_id", "is required")
	}
	if event.ProcessedAt.IsZero() {
		event.ProcessedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.events[event.EventID]; ok {
		return existing, domain.ErrWebhookEventAlreadyProcessed
	}
	r.events[event.EventID] = event
	return event, nil
}

// Release удаляет запись о событии.
func (r *webhookEventRepositoryInMemory) Release(_ context.Context, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.events[eventID]; !ok {
		return domain.ErrWebhookEventNotFound
	}
	delete(r.events, eventID)
	return nil
}

var _ domain.WebhookEventRepository = (*webhookEventRepositoryInMemory)(nil)
