package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wallet-ledger/internal/domain/shared"
	"github.com/wallet-ledger/internal/domain/transaction"
)

// TransactionServiceImpl implements the TransactionService interface
type TransactionServiceImpl struct {
	ledger Ledger
	logger *slog.Logger
}

func NewTransactionService(logger *slog.Logger, ledger Ledger) TransactionService {
	return &TransactionServiceImpl{
		ledger: ledger,
		logger: logger,
	}
}

func (s *TransactionServiceImpl) Initiate(_ context.Context, txType shared.TransactionType, amount decimal.Decimal) (*transaction.Quote, error) {
	return s.ledger.Initiate(txType, amount)
}

// Confirm takes the asynchronous path: deposits and withdrawals return
// PROCESSING, transfers return their final status. A nil id is minted by the ledger.
func (s *TransactionServiceImpl) Confirm(ctx context.Context, txType shared.TransactionType, id uuid.UUID, req transaction.Request) (*transaction.Transaction, error) {
	t, err := s.ledger.ConfirmAsynchronous(ctx, txType, id, req)
	if err != nil {
		s.logFailure("confirm", id, err,
			"type", string(txType),
			"wallet_id", req.WalletID.String(),
		)
		return nil, err
	}
	s.logger.Info("Transaction confirmed",
		"transaction_id", t.ID.String(),
		"type", string(t.Type),
		"status", string(t.Status),
	)
	return t, nil
}

func (s *TransactionServiceImpl) Register(ctx context.Context, txType shared.TransactionType, id uuid.UUID, req transaction.Request) (*transaction.Transaction, error) {
	t, err := s.ledger.Register(ctx, txType, id, req)
	if err != nil {
		s.logFailure("register", id, err, "type", string(txType))
		return nil, err
	}
	return t, nil
}

// Execute confirms a registered transaction synchronously. A business
// failure comes back as the FAILED transaction together with its cause.
func (s *TransactionServiceImpl) Execute(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	t, err := s.ledger.ConfirmSynchronous(ctx, id)
	if err != nil {
		s.logFailure("execute", id, err)
	}
	return t, err
}

func (s *TransactionServiceImpl) Cancel(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	t, err := s.ledger.Cancel(ctx, id)
	if err != nil {
		s.logFailure("cancel", id, err)
		return nil, err
	}
	return t, nil
}

func (s *TransactionServiceImpl) Status(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	return s.ledger.Status(ctx, id)
}

// logFailure logs caller mistakes at warn and everything else at error.
func (s *TransactionServiceImpl) logFailure(op string, id uuid.UUID, err error, attrs ...any) {
	category := shared.CategoryOf(err)
	attrs = append(attrs, "operation", op, "category", category, "error", err)
	if id != uuid.Nil {
		attrs = append(attrs, "transaction_id", id.String())
	}

	switch category {
	case shared.CategoryPersistence, shared.CategoryUnknown:
		s.logger.Error("Transaction operation failed", attrs...)
	default:
		s.logger.Warn("Transaction operation rejected", attrs...)
	}
}
