package broker

import (
	"github.com/segmentio/kafka-go"

	"ledger-service/internal/config"
)

// NewKafkaWriter produces notification events keyed by user so consumers
// see each user's events in order.
func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.NotificationsTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  10,
	}
}
