package domain

import "time"

// ProcessedWebhookEvent — запись журнала дедупликации webhook-событий.
// Наличие записи означает, что событие уже обработано.
type ProcessedWebhookEvent struct {
	EventID     string
	EventType   string
	ProcessedAt time.Time
}
