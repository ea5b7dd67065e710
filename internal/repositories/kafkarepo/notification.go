package kafkarepo

import (
	"context"
	"encoding/json"
	"fmt"

	"ledger-service/internal/models"

	"github.com/segmentio/kafka-go"
)

type NotificationRepository struct {
	writer *kafka.Writer
}

func NewNotificationRepository(writer *kafka.Writer) *NotificationRepository {
	return &NotificationRepository{
		writer: writer,
	}
}

// SendNotification publishes an event to Kafka.
// Keyed by user ID so all events for one user land on one partition and
// arrive in order.
func (r *NotificationRepository) SendNotification(ctx context.Context, event models.NotificationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal notification event: %w", err)
	}

	err = r.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.UserID),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}
