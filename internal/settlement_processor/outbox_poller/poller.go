package outbox_poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wallet-ledger/internal/config"
	"github.com/wallet-ledger/internal/domain/outbox"
	"github.com/wallet-ledger/internal/domain/shared"
	"github.com/wallet-ledger/internal/platform/metrics"
)

// Outcome labels of the outbox_messages_total counter.
const (
	OutcomePublished = "published"
	OutcomeRetry     = "retry"
	OutcomeFailed    = "failed"
)

const maxPurgeInterval = time.Hour

// Poller drains the outbox of one shard
type Poller struct {
	shard            int
	outboxRepo       outbox.Repository
	dispatcher       Dispatcher
	metrics          *metrics.Metrics
	logger           *slog.Logger
	pollInterval     time.Duration
	batchSize        int
	maxRetryAttempts int
	retention        time.Duration
}

func NewPoller(
	cfg *config.OutboxConfig,
	shard int,
	outboxRepo outbox.Repository,
	dispatcher Dispatcher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		shard:            shard,
		outboxRepo:       outboxRepo,
		dispatcher:       dispatcher,
		metrics:          m,
		logger:           logger.With("shard", fmt.Sprintf("ds%d", shard)),
		pollInterval:     cfg.PollingInterval,
		batchSize:        cfg.BatchSize,
		maxRetryAttempts: cfg.MaxRetryAttempts,
		retention:        cfg.Retention,
	}
}

// Start polls until ctx is cancelled
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("Starting Outbox Poller",
		"poll_interval", p.pollInterval.String(),
		"batch_size", p.batchSize,
		"max_retry_attempts", p.maxRetryAttempts,
		"retention", p.retention.String(),
	)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	purge := time.NewTicker(min(p.retention, maxPurgeInterval))
	defer purge.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox Poller stopping due to context cancellation.")
			return
		case <-ticker.C:
			if err := p.processPendingMessages(ctx); err != nil {
				p.logger.Error("Error during batch processing of pending outbox messages", "error", err)
			}
		case <-purge.C:
			if err := p.purgeProcessed(ctx); err != nil {
				p.logger.Error("Failed to purge processed outbox messages", "error", err)
			}
		}
	}
}

// processPendingMessages delivers one batch in id order.
func (p *Poller) processPendingMessages(ctx context.Context) error {
	messages, err := p.outboxRepo.GetPending(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to get pending outbox messages: %w", err)
	}
	if len(messages) == 0 {
		return nil
	}

	p.logger.Debug("Fetched pending outbox messages", "count", len(messages))
	for _, msg := range messages {
		p.deliver(ctx, msg)
	}
	return nil
}

func (p *Poller) deliver(ctx context.Context, msg *outbox.Message) {
	logger := p.logger.With(
		"outbox_id", msg.ID,
		"transaction_id", msg.TransactionID.String(),
		"event_type", string(msg.EventType),
	)

	err := p.dispatcher.Dispatch(ctx, msg)
	if err == nil {
		if errUpdate := p.outboxRepo.UpdateStatus(ctx, msg.ID, shared.OutboxStatusProcessed); errUpdate != nil {
			// Delivered but not marked: the next tick delivers it again.
			logger.Error("Failed to mark outbox message as processed", "error", errUpdate)
			return
		}
		p.count(msg, OutcomePublished)
		logger.Debug("Outbox message delivered")
		return
	}

	logger.Error("Failed to deliver outbox message", "current_attempts", msg.Attempts, "error", err)

	if errors.Is(err, ErrUndeliverable) {
		p.markFailed(ctx, logger, msg)
		return
	}
	if errInc := p.outboxRepo.IncrementAttempts(ctx, msg.ID); errInc != nil {
		logger.Error("Failed to increment attempts for outbox message", "error", errInc)
		return
	}
	if msg.Attempts+1 >= p.maxRetryAttempts {
		logger.Warn("Max retry attempts reached for outbox message", "attempts_made", msg.Attempts+1)
		p.markFailed(ctx, logger, msg)
		return
	}
	p.count(msg, OutcomeRetry)
}

func (p *Poller) markFailed(ctx context.Context, logger *slog.Logger, msg *outbox.Message) {
	if err := p.outboxRepo.UpdateStatus(ctx, msg.ID, shared.OutboxStatusFailedToPublish); err != nil {
		logger.Error("Failed to update outbox status to FAILED_TO_PUBLISH", "error", err)
		return
	}
	p.count(msg, OutcomeFailed)
}

func (p *Poller) count(msg *outbox.Message, outcome string) {
	p.metrics.OutboxPublished.WithLabelValues(string(msg.EventType), outcome).Inc()
}

func (p *Poller) purgeProcessed(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-p.retention)
	deleted, err := p.outboxRepo.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		p.logger.Info("Purged processed outbox messages", "count", deleted, "cutoff", cutoff)
	}
	return nil
}
