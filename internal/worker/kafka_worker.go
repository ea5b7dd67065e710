package worker

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"

	"ledger-service/internal/models"
)

func (m *PartitionManager) runWorker(ctx context.Context, partition int, partitionConsumer sarama.PartitionConsumer) {
	for {
		select {
		case <-ctx.Done():
			m.log.Infof("partition %d: shutdown signal received", partition)
			return

		case msg := <-partitionConsumer.Messages():
			var cb models.GatewayCallback
			if err := json.Unmarshal(msg.Value, &cb); err != nil {
				m.log.WithError(err).Errorf("partition %d: failed to unmarshal callback", partition)
				continue
			}
			m.handleCallback(ctx, partition, cb)

		case err := <-partitionConsumer.Errors():
			m.log.WithError(err).Errorf("partition %d: kafka error", partition)
		}
	}
}

// handleCallback settles one gateway callback. Domain rejections are
// already downgraded inside the service; anything surfacing here is an
// infrastructure fault worth logging loudly.
func (m *PartitionManager) handleCallback(ctx context.Context, partition int, cb models.GatewayCallback) {
	if err := m.service.HandleGatewayCallback(ctx, cb); err != nil {
		m.log.WithError(err).Errorf("partition %d: failed to settle top-up %s", partition, cb.TopUpID)
		return
	}
	m.log.Infof("partition %d: settled top-up %s", partition, cb.TopUpID)
}
