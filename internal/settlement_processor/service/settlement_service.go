package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wallet-ledger/internal/domain/shared"
	"github.com/wallet-ledger/internal/domain/transaction"
	"github.com/wallet-ledger/internal/platform/metrics"
)

// Outcome labels of the settlement_events_total counter.
const (
	OutcomeApplied  = "applied"
	OutcomeRejected = "rejected"
	OutcomeRetry    = "retry"
)

var ErrUnknownEventKind = fmt.Errorf("unknown settlement event kind: %w", shared.ErrInvalidArgument)

type SettlementServiceImpl struct {
	ledger  Ledger
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewSettlementService(ledger Ledger, m *metrics.Metrics, logger *slog.Logger) SettlementService {
	return &SettlementServiceImpl{
		ledger:  ledger,
		metrics: m,
		logger:  logger,
	}
}

// Apply routes the event to the matching ledger operation. Redelivered events
// for settled transactions are absorbed by the ledger and reported as applied.
func (s *SettlementServiceImpl) Apply(ctx context.Context, event *SettlementEvent) error {
	logger := s.logger.With("transaction_id", event.TransactionID.String(), "kind", string(event.Kind))
	logger.Info("Applying settlement event")

	var err error
	switch event.Kind {
	case KindDepositCompleted:
		err = s.ledger.OnSettlementCompleted(ctx, event.TransactionID, event.Amount)
	case KindWithdrawalFailed:
		err = s.ledger.OnSettlementFailed(ctx, event.TransactionID, event.Reason)
	case KindWithdrawalCompleted:
		err = s.ledger.OnWithdrawalSettled(ctx, event.TransactionID)
	default:
		err = ErrUnknownEventKind
	}

	outcome := classify(err)
	s.metrics.SettlementEvents.WithLabelValues(string(event.Kind), outcome).Inc()

	if err != nil {
		logger.Error("Failed to apply settlement event", "outcome", outcome, "category", shared.CategoryOf(err), "error", err)
		return fmt.Errorf("settlement %s for transaction %s: %w", event.Kind, event.TransactionID, err)
	}
	logger.Info("Settlement event applied")
	return nil
}

// IsPermanent reports whether redelivering the event can never succeed.
// Unknown transactions are permanent because a request is only published
// after its transaction committed.
func IsPermanent(err error) bool {
	return errors.Is(err, shared.ErrInvalidArgument) || errors.Is(err, transaction.ErrTransactionNotFound{})
}

func classify(err error) string {
	switch {
	case err == nil:
		return OutcomeApplied
	case IsPermanent(err):
		return OutcomeRejected
	default:
		return OutcomeRetry
	}
}
