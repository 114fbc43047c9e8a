package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/wallet-ledger/internal/config"
	"github.com/wallet-ledger/internal/domain/shared"
	"github.com/wallet-ledger/internal/platform/messaging/consumers"
	"github.com/wallet-ledger/internal/platform/messaging/producers"
	"github.com/wallet-ledger/internal/settlement_processor/service"
)

var errMissingTransactionID = errors.New("transactionId is required")

// SettlementEventHandler turns payment rail messages into settlement events.
// Messages that can never be applied are parked in the DLQ and acknowledged;
// anything else that fails is returned so the consumer redelivers it.
type SettlementEventHandler struct {
	settlementService service.SettlementService
	producer          producers.DeadLetterPublisher
	kinds             map[string]service.EventKind
	logger            *slog.Logger
}

func NewSettlementEventHandler(
	logger *slog.Logger,
	cfg *config.KafkaConfig,
	settlementService service.SettlementService,
	producer producers.DeadLetterPublisher,
) *SettlementEventHandler {
	return &SettlementEventHandler{
		settlementService: settlementService,
		producer:          producer,
		kinds: map[string]service.EventKind{
			cfg.DepositCompletedTopic:    service.KindDepositCompleted,
			cfg.WithdrawalFailedTopic:    service.KindWithdrawalFailed,
			cfg.WithdrawalCompletedTopic: service.KindWithdrawalCompleted,
		},
		logger: logger,
	}
}

// For returns the handler for messages read from topic.
func (h *SettlementEventHandler) For(topic string) (consumers.MessageHandler, error) {
	kind, ok := h.kinds[topic]
	if !ok {
		return nil, fmt.Errorf("no settlement event kind for topic %s", topic)
	}
	return func(ctx context.Context, key []byte, value []byte) error {
		return h.HandleMessage(ctx, topic, kind, key, value)
	}, nil
}

func (h *SettlementEventHandler) HandleMessage(ctx context.Context, topic string, kind service.EventKind, key []byte, value []byte) error {
	event, err := decode(kind, value)
	if err != nil {
		h.logger.Error("Failed to decode settlement event",
			"topic", topic,
			"message_key", string(key),
			"error", err,
		)
		return h.park(ctx, topic, key, value, fmt.Errorf("malformed %s event: %w", kind, err))
	}

	err = h.settlementService.Apply(ctx, event)
	switch {
	case err == nil:
		return nil
	case service.IsPermanent(err):
		return h.park(ctx, topic, key, value, err)
	default:
		return fmt.Errorf("applying %s for transaction %s failed: %w", kind, event.TransactionID, err)
	}
}

// park sends the message to the DLQ. When that fails too the original error
// is returned so the message is redelivered instead of lost.
func (h *SettlementEventHandler) park(ctx context.Context, topic string, key, value []byte, cause error) error {
	if dlqErr := h.producer.PublishToDLQ(ctx, topic, string(key), value, cause.Error()); dlqErr != nil {
		h.logger.Error("Failed to publish message to DLQ",
			"topic", topic,
			"message_key", string(key),
			"dlq_error", dlqErr,
			"original_error", cause,
		)
		return cause
	}
	return nil
}

func decode(kind service.EventKind, value []byte) (*service.SettlementEvent, error) {
	event := &service.SettlementEvent{Kind: kind}
	var err error

	switch kind {
	case service.KindDepositCompleted:
		var msg shared.DepositCompletedEvent
		err = json.Unmarshal(value, &msg)
		event.TransactionID, event.Amount = msg.TransactionID, msg.Amount
	case service.KindWithdrawalFailed:
		var msg shared.WithdrawalFailedEvent
		err = json.Unmarshal(value, &msg)
		event.TransactionID, event.Reason = msg.TransactionID, msg.FailureReason
	case service.KindWithdrawalCompleted:
		var msg shared.WithdrawalCompletedEvent
		err = json.Unmarshal(value, &msg)
		event.TransactionID = msg.TransactionID
	default:
		return nil, service.ErrUnknownEventKind
	}

	if err != nil {
		return nil, err
	}
	if event.TransactionID == uuid.Nil {
		return nil, errMissingTransactionID
	}
	return event, nil
}
