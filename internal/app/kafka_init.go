package app

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/florist/internal/domain"
	"github.com/vladislavdragonenkov/florist/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/florist/internal/service/notification"
)

// initKafkaProducer инициализирует Kafka producer, если brokers не пустой.
// Возвращает nil, nil для пустого списка брокеров.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	brokerList := splitBrokers(brokers)
	if len(brokerList) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokerList)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer, nil
}

func splitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// notificationSender выбирает канал уведомлений: очередь почтового сервиса или лог.
func notificationSender(producer *kafka.Producer, logger *log.Entry) domain.NotificationSender {
	if producer == nil {
		logger.Info("kafka is not configured, notifications are written to log")
		return notification.NewLogSender(logger.WithField("component", "notification"))
	}
	return kafka.NewNotificationPublisher(producer, kafka.TopicNotifications)
}

// closeKafka закрывает Kafka producer, если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
