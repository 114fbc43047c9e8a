package outbox_poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wallet-ledger/internal/config"
	"github.com/wallet-ledger/internal/domain/audit"
	"github.com/wallet-ledger/internal/domain/outbox"
	"github.com/wallet-ledger/internal/platform/messaging/producers"
)

// ErrUndeliverable marks messages no retry can deliver
var ErrUndeliverable = errors.New("outbox message is undeliverable")

// Dispatcher delivers one outbox message to wherever its event type belongs
type Dispatcher interface {
	Dispatch(ctx context.Context, message *outbox.Message) error
}

// OutboxDispatcher sends settlement requests to Kafka and projects status
// changes into the audit trail.
type OutboxDispatcher struct {
	publisher producers.MessagePublisher
	auditRepo audit.Repository
	topics    map[outbox.EventType]string
	logger    *slog.Logger
}

func NewOutboxDispatcher(
	cfg *config.KafkaConfig,
	publisher producers.MessagePublisher,
	auditRepo audit.Repository,
	logger *slog.Logger,
) *OutboxDispatcher {
	return &OutboxDispatcher{
		publisher: publisher,
		auditRepo: auditRepo,
		topics: map[outbox.EventType]string{
			outbox.EventTypeDepositRequested:    cfg.DepositRequestedTopic,
			outbox.EventTypeWithdrawalRequested: cfg.WithdrawalRequestedTopic,
		},
		logger: logger,
	}
}

func (d *OutboxDispatcher) Dispatch(ctx context.Context, message *outbox.Message) error {
	if message.EventType == outbox.EventTypeStatusChanged {
		return d.project(ctx, message)
	}

	topic, ok := d.topics[message.EventType]
	if !ok {
		return fmt.Errorf("%w: unknown event type %q", ErrUndeliverable, message.EventType)
	}
	return d.publisher.Publish(ctx, topic, message.WalletID.String(), message.Payload)
}

// project writes the audit entry. An entry already recorded by an earlier
// attempt counts as delivered.
func (d *OutboxDispatcher) project(ctx context.Context, message *outbox.Message) error {
	event, err := message.StatusChanged()
	if err != nil {
		return fmt.Errorf("%w: decode status change: %v", ErrUndeliverable, err)
	}

	err = d.auditRepo.Create(ctx, audit.FromStatusChanged(event))
	if errors.Is(err, audit.ErrDuplicateEntry{}) {
		d.logger.Debug("Audit entry already recorded",
			"outbox_id", message.ID,
			"transaction_id", event.TransactionID.String(),
			"status", string(event.Status),
		)
		return nil
	}
	return err
}
