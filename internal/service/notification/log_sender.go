package notification

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/florist/internal/domain"
)

// LogSender пишет уведомление в лог. Используется, когда брокер не настроен.
type LogSender struct {
	logger *log.Entry
}

// NewLogSender создаёт LogSender.
func NewLogSender(logger *log.Entry) *LogSender {
	if logger == nil {
		logger = log.WithField("component", "notification-log-sender")
	}
	return &LogSender{logger: logger}
}

// Send пишет уведомление в лог.
func (s *LogSender) Send(_ context.Context, n domain.Notification) error {
	s.logger.WithFields(log.Fields{
		"order_number": n.OrderNumber,
		"recipient":    n.Recipient,
		"subject":      n.Subject,
		"lines":        len(n.Lines),
		"total_minor":  n.TotalMinor,
		"currency":     n.Currency,
	}).Info("notification queued to log")
	return nil
}

var _ domain.NotificationSender = (*LogSender)(nil)
