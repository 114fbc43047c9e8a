// Package postgres provides PostgreSQL implementations of the domain repositories.
// Every repository instance talks to exactly one shard; callers pick the shard.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/wallet-ledger/internal/domain/shared"
	"github.com/wallet-ledger/internal/domain/wallet"
	"github.com/wallet-ledger/internal/platform/persistence"
)

// SystemCurrency is the currency code of the inactive wallet type the system wallet uses.
const SystemCurrency = "XXX"

const walletColumns = `
		w.id, w.user_uid, w.wallet_type_uid, w.name, wt.currency_code, w.status, w.balance::text, w.created_at, w.updated_at
		FROM wallets w
		JOIN wallet_types wt ON wt.id = w.wallet_type_uid`

// WalletRepository implements the wallet.Repository interface for PostgreSQL
type WalletRepository struct {
	querier persistence.Querier // Can be the shard pool or pgx.Tx
	logger  *slog.Logger
}

// NewWalletRepository creates a wallet repository bound to one shard
func NewWalletRepository(logger *slog.Logger, db *persistence.PostgresDB) wallet.Repository {
	return &WalletRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository that runs every statement inside tx.
func (r *WalletRepository) WithTx(tx pgx.Tx) wallet.Repository {
	return &WalletRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new wallet. The (user, wallet type) unique index turns a
// second wallet of the same currency into ErrWalletAlreadyExists.
func (r *WalletRepository) Create(ctx context.Context, w *wallet.Wallet) error {
	query := `
		INSERT INTO wallets (id, user_uid, wallet_type_uid, name, status, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.querier.Exec(ctx, query,
		w.ID,
		w.UserID,
		w.WalletTypeID,
		w.Name,
		w.Status,
		w.Balance.String(),
		w.CreatedAt,
		w.UpdatedAt,
	)
	if err != nil {
		if persistence.IsUniqueViolation(err) {
			return wallet.ErrWalletAlreadyExists{UserID: w.UserID, Currency: w.Currency}
		}
		r.logger.Error("Failed to create wallet", "error", err)
		return fmt.Errorf("failed to create wallet: %w", err)
	}

	return nil
}

// GetByID reads a wallet without locking it
func (r *WalletRepository) GetByID(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	query := `SELECT` + walletColumns + `
		WHERE w.id = $1
	`

	w, err := scanWallet(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, wallet.ErrWalletNotFound{WalletID: id}
		}
		r.logger.Error("Failed to get wallet", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	return w, nil
}

// LockForUpdate takes the row lock on the wallet and returns its current state.
// The lock is held until the enclosing transaction ends.
func (r *WalletRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	query := `SELECT` + walletColumns + `
		WHERE w.id = $1
		FOR UPDATE OF w
	`

	w, err := scanWallet(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, wallet.ErrWalletNotFound{WalletID: id}
		}
		err = persistence.TranslateError(err)
		r.logger.Error("Failed to lock wallet for update", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock wallet for update: %w", err)
	}

	return w, nil
}

// UpdateBalance writes the balance and updated_at of a locked wallet
func (r *WalletRepository) UpdateBalance(ctx context.Context, w *wallet.Wallet) error {
	query := `
		UPDATE wallets
		SET balance = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := r.querier.Exec(ctx, query, w.Balance.String(), w.UpdatedAt, w.ID)
	if err != nil {
		if persistence.IsCheckViolation(err) {
			return wallet.ErrInsufficientFunds{WalletID: w.ID, Balance: w.Balance, Requested: decimal.Zero}
		}
		err = persistence.TranslateError(err)
		r.logger.Error("Failed to update wallet balance", "id", w.ID.String(), "error", err)
		return fmt.Errorf("failed to update wallet balance: %w", err)
	}

	if result.RowsAffected() == 0 {
		return wallet.ErrWalletNotFound{WalletID: w.ID}
	}

	return nil
}

// ExistsForUserAndType reports whether the user already holds a wallet of this type
func (r *WalletRepository) ExistsForUserAndType(ctx context.Context, userID, walletTypeID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM wallets WHERE user_uid = $1 AND wallet_type_uid = $2
		)
	`

	var exists bool
	if err := r.querier.QueryRow(ctx, query, userID, walletTypeID).Scan(&exists); err != nil {
		r.logger.Error("Failed to check wallet existence", "user_id", userID.String(), "error", err)
		return false, fmt.Errorf("failed to check wallet existence: %w", err)
	}
	return exists, nil
}

// GetActiveTypeByCurrency finds the ACTIVE wallet type for a currency code
func (r *WalletRepository) GetActiveTypeByCurrency(ctx context.Context, currency string) (*wallet.WalletType, error) {
	query := `
		SELECT id, name, currency_code, status
		FROM wallet_types
		WHERE currency_code = $1 AND status = $2
	`

	var wt wallet.WalletType
	err := r.querier.QueryRow(ctx, query, currency, shared.WalletStatusActive).Scan(
		&wt.ID,
		&wt.Name,
		&wt.CurrencyCode,
		&wt.Status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, wallet.ErrWalletTypeNotFound{Currency: currency}
		}
		r.logger.Error("Failed to get wallet type", "currency", currency, "error", err)
		return nil, fmt.Errorf("failed to get wallet type: %w", err)
	}

	return &wt, nil
}

// EnsureSystemWallet inserts the zero-balance system wallet on this shard
// unless a row with that id already exists.
func (r *WalletRepository) EnsureSystemWallet(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		INSERT INTO wallets (id, user_uid, wallet_type_uid, name, status, balance, created_at, updated_at)
		SELECT $1, $1, wt.id, $2, $3, 0, $4, $4
		FROM wallet_types wt
		WHERE wt.currency_code = $5
		ON CONFLICT (id) DO NOTHING
	`

	result, err := r.querier.Exec(ctx, query, id, "System wallet", shared.WalletStatusActive, time.Now().UTC(), SystemCurrency)
	if err != nil {
		r.logger.Error("Failed to ensure system wallet", "id", id.String(), "error", err)
		return false, fmt.Errorf("failed to ensure system wallet: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

func scanWallet(row pgx.Row) (*wallet.Wallet, error) {
	var (
		w       wallet.Wallet
		balance string
	)
	err := row.Scan(
		&w.ID,
		&w.UserID,
		&w.WalletTypeID,
		&w.Name,
		&w.Currency,
		&w.Status,
		&balance,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	w.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance %q: %w", balance, err)
	}
	return &w, nil
}
