package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/florist/internal/domain"
)

type webhookEventRepository struct {
	db *sql.DB
}

// NewWebhookEventRepository создаёт PostgreSQL-журнал обработанных webhook-событий.
func NewWebhookEventRepository(store *Store) domain.WebhookEventRepository {
	return &webhookEventRepository{db: store.DB()}
}

// Record вставляет событие; при нарушении первичного ключа читает существующую запись.
func (r *webhookEventRepository) Record(ctx context.Context, event domain.ProcessedWebhookEvent) (domain.ProcessedWebhookEvent, error) {
	event.EventID = strings.TrimSpace(event.EventID)
	if event.EventID == "" {
		return domain.ProcessedWebhookEvent{}, domain.NewValidationError("event_id", "is required")
	}
	if event.ProcessedAt.IsZero() {
		event.ProcessedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO processed_webhook_events (event_id, event_type, processed_at)
		VALUES ($1,$2,$3)
	`, event.EventID, event.EventType, event.ProcessedAt)
	if err == nil {
		return event, nil
	}
	if !isUniqueViolation(err) {
		return domain.ProcessedWebhookEvent{}, fmt.Errorf("record webhook event: %w", err)
	}

	var existing domain.ProcessedWebhookEvent
	if err := r.db.QueryRowContext(ctx, `
		SELECT event_id, event_type, processed_at
		FROM processed_webhook_events
		WHERE event_id = $1
	`, event.EventID).Scan(&existing.EventID, &existing.EventType, &existing.ProcessedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Запись успели освободить между INSERT и SELECT.
			return domain.ProcessedWebhookEvent{}, fmt.Errorf("record webhook event: concurrent release of %s", event.EventID)
		}
		return domain.ProcessedWebhookEvent{}, fmt.Errorf("load webhook event: %w", err)
	}
	existing.ProcessedAt = existing.ProcessedAt.UTC()
	return existing, domain.ErrWebhookEventAlreadyProcessed
}

func (r *webhookEventRepository) Release(ctx context.Context, eventID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM processed_webhook_events WHERE event_id = $1`, strings.TrimSpace(eventID))
	if err != nil {
		return fmt.Errorf("release webhook event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for webhook release: %w", err)
	}
	if affected == 0 {
		return domain.ErrWebhookEventNotFound
	}
	return nil
}

var _ domain.WebhookEventRepository = (*webhookEventRepository)(nil)
