package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"ledger-service/internal/config"
	"ledger-service/internal/services"
)

// PartitionManager runs one callback worker per partition of the gateway
// callbacks topic. Callbacks are keyed by user, so a partition never sees
// two concurrent settlements for the same top-up.
type PartitionManager struct {
	cfg     *config.Config
	service *services.WalletLedgerService
	log     *logrus.Logger
	wg      sync.WaitGroup
}

func NewPartitionManager(cfg *config.Config, service *services.WalletLedgerService, log *logrus.Logger) *PartitionManager {
	return &PartitionManager{
		cfg:     cfg,
		service: service,
		log:     log,
	}
}

func (m *PartitionManager) Start(ctx context.Context) error {
	m.log.Infof("starting callback workers for %d partitions", m.cfg.Kafka.Partitions)

	consumer, err := sarama.NewConsumer(m.cfg.Kafka.Brokers, m.cfg.Kafka.GetSaramaConfig())
	if err != nil {
		return fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	defer consumer.Close()

	for partition := 0; partition < m.cfg.Kafka.Partitions; partition++ {
		m.wg.Add(1)
		go m.startWorkerForPartition(ctx, consumer, partition)
	}

	// Wait for all workers to complete to prevent program termination
	m.wg.Wait()
	m.log.Info("all partition workers stopped")
	return nil
}

func (m *PartitionManager) startWorkerForPartition(ctx context.Context, consumer sarama.Consumer, partition int) {
	defer m.wg.Done()

	m.log.Infof("starting worker for partition %d", partition)

	partitionConsumer, err := consumer.ConsumePartition(
		m.cfg.Kafka.CallbacksTopic,
		int32(partition),
		sarama.OffsetNewest,
	)
	if err != nil {
		m.log.WithError(err).Errorf("partition %d: failed to create partition consumer", partition)
		return
	}
	defer partitionConsumer.Close()

	m.runWorker(ctx, partition, partitionConsumer)
}
