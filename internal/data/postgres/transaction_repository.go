package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/wallet-ledger/internal/domain/transaction"
	"github.com/wallet-ledger/internal/platform/persistence"
)

const transactionColumns = `
		id, user_uid, wallet_uid, target_wallet_uid, amount::text, COALESCE(fee, 0)::text,
		type, status, COALESCE(comment, ''), COALESCE(failure_reason, ''), created_at, updated_at
		FROM transactions`

// TransactionRepository implements the transaction.Repository interface for PostgreSQL
type TransactionRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewTransactionRepository creates a transaction repository bound to one shard
func NewTransactionRepository(logger *slog.Logger, db *persistence.PostgresDB) transaction.Repository {
	return &TransactionRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository that runs every statement inside tx.
func (r *TransactionRepository) WithTx(tx pgx.Tx) transaction.Repository {
	return &TransactionRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create appends a transaction to the log
func (r *TransactionRepository) Create(ctx context.Context, t *transaction.Transaction) error {
	query := `
		INSERT INTO transactions (id, user_uid, wallet_uid, target_wallet_uid, amount, fee, type, status,
			comment, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11, $12)
	`

	_, err := r.querier.Exec(ctx, query,
		t.ID,
		t.UserID,
		t.WalletID,
		t.TargetWalletID,
		t.Amount.String(),
		t.Fee.String(),
		t.Type,
		t.Status,
		t.Comment,
		t.FailureReason,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		if persistence.IsUniqueViolation(err) {
			return transaction.ErrAlreadyProcessed{TransactionID: t.ID}
		}
		r.logger.Error("Failed to create transaction", "id", t.ID.String(), "error", err)
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

// GetByID reads a transaction without locking it
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	query := `SELECT` + transactionColumns + `
		WHERE id = $1
	`

	t, err := scanTransaction(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, transaction.ErrTransactionNotFound{TransactionID: id}
		}
		r.logger.Error("Failed to get transaction", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return t, nil
}

// LockForUpdate takes the transaction row lock, serialising every state
// change of this transaction behind the current unit of work.
func (r *TransactionRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	query := `SELECT` + transactionColumns + `
		WHERE id = $1
		FOR UPDATE
	`

	t, err := scanTransaction(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, transaction.ErrTransactionNotFound{TransactionID: id}
		}
		err = persistence.TranslateError(err)
		r.logger.Error("Failed to lock transaction for update", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock transaction for update: %w", err)
	}

	return t, nil
}

// Update persists the mutable lifecycle fields
func (r *TransactionRepository) Update(ctx context.Context, t *transaction.Transaction) error {
	query := `
		UPDATE transactions
		SET status = $1, failure_reason = NULLIF($2, ''), updated_at = $3
		WHERE id = $4
	`

	result, err := r.querier.Exec(ctx, query, t.Status, t.FailureReason, t.UpdatedAt, t.ID)
	if err != nil {
		err = persistence.TranslateError(err)
		r.logger.Error("Failed to update transaction", "id", t.ID.String(), "status", string(t.Status), "error", err)
		return fmt.Errorf("failed to update transaction: %w", err)
	}

	if result.RowsAffected() == 0 {
		return transaction.ErrTransactionNotFound{TransactionID: t.ID}
	}

	return nil
}

func scanTransaction(row pgx.Row) (*transaction.Transaction, error) {
	var (
		t           transaction.Transaction
		amount, fee string
	)
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.WalletID,
		&t.TargetWalletID,
		&amount,
		&fee,
		&t.Type,
		&t.Status,
		&t.Comment,
		&t.FailureReason,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("failed to parse amount %q: %w", amount, err)
	}
	if t.Fee, err = decimal.NewFromString(fee); err != nil {
		return nil, fmt.Errorf("failed to parse fee %q: %w", fee, err)
	}
	return &t, nil
}
