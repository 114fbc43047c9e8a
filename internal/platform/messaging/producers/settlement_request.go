package producers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"
	"github.com/wallet-ledger/internal/config"
)

// SettlementRequestProducer relays deposit and withdrawal requests to the
// payment rail. Writes are synchronous so the outbox row is only marked
// processed once every replica acknowledged it.
type SettlementRequestProducer struct {
	logger *slog.Logger
	writer KafkaWriter
}

func NewSettlementRequestProducer(_ context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*SettlementRequestProducer, error) {
	topics := []string{cfg.DepositRequestedTopic, cfg.WithdrawalRequestedTopic}
	for _, topic := range topics {
		if topic == "" {
			return nil, fmt.Errorf("kafka settlement request topics are not configured")
		}
	}

	if err := ensureTopics(cfg.Brokers, topics, cfg.NumPartitions, cfg.ReplicationFactor, logger); err != nil {
		return nil, fmt.Errorf("failed to ensure settlement request topics exist: %w", err)
	}

	// Topic is left unset, each message names its own.
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: cfg.MaxWait,
	}

	return &SettlementRequestProducer{
		logger: logger,
		writer: writer,
	}, nil
}

// Publish keys by wallet so requests of one wallet stay ordered within a partition.
func (p *SettlementRequestProducer) Publish(ctx context.Context, topic, key string, value []byte) error {
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish settlement request",
			"topic", topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish message to %s: %w", topic, err)
	}

	p.logger.Debug("Published settlement request", "topic", topic, "key", key)
	return nil
}

func (p *SettlementRequestProducer) Close() error {
	p.logger.Info("Closing settlement request producer")
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close settlement request writer: %w", err)
	}
	return nil
}
