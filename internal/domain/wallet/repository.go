package wallet

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/wallet-ledger/internal/domain/shared"
)

// Repository defines wallet persistence operations on a single shard
type Repository interface {
	Create(ctx context.Context, wallet *Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*Wallet, error)

	// LockForUpdate reads the wallet holding its row lock until the unit of work ends
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Wallet, error)
	UpdateBalance(ctx context.Context, wallet *Wallet) error

	ExistsForUserAndType(ctx context.Context, userID, walletTypeID uuid.UUID) (bool, error)
	GetActiveTypeByCurrency(ctx context.Context, currency string) (*WalletType, error)

	// EnsureSystemWallet inserts the fee wallet if it is missing and reports whether it did
	EnsureSystemWallet(ctx context.Context, id uuid.UUID) (bool, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrWalletNotFound indicates a missing wallet
type ErrWalletNotFound struct {
	WalletID uuid.UUID
}

func (e ErrWalletNotFound) Error() string {
	return "wallet not found: " + e.WalletID.String()
}

// Is matches any ErrWalletNotFound when the target id is empty, and the NotFound category
func (e ErrWalletNotFound) Is(target error) bool {
	if errors.Is(shared.ErrNotFound, target) {
		return true
	}
	t, ok := target.(ErrWalletNotFound)
	if !ok {
		return false
	}
	if t.WalletID == uuid.Nil {
		return true
	}
	return e.WalletID == t.WalletID
}

// ErrWalletInactive is reported as not found to callers
type ErrWalletInactive struct {
	WalletID uuid.UUID
}

func (e ErrWalletInactive) Error() string {
	return "wallet is not active: " + e.WalletID.String()
}

func (e ErrWalletInactive) Is(target error) bool {
	if errors.Is(shared.ErrNotFound, target) {
		return true
	}
	t, ok := target.(ErrWalletInactive)
	return ok && (t.WalletID == uuid.Nil || t.WalletID == e.WalletID)
}

// ErrWalletAlreadyExists indicates the (user, wallet type) uniqueness violation
type ErrWalletAlreadyExists struct {
	UserID   uuid.UUID
	Currency string
}

func (e ErrWalletAlreadyExists) Error() string {
	return "wallet already exists for user " + e.UserID.String() + " in " + e.Currency
}

func (e ErrWalletAlreadyExists) Is(target error) bool {
	if errors.Is(shared.ErrInvalidArgument, target) {
		return true
	}
	_, ok := target.(ErrWalletAlreadyExists)
	return ok
}

// ErrWalletTypeNotFound indicates no active wallet type for a currency
type ErrWalletTypeNotFound struct {
	Currency string
}

func (e ErrWalletTypeNotFound) Error() string {
	return "wallet type not found for currency: " + e.Currency
}

func (e ErrWalletTypeNotFound) Is(target error) bool {
	if errors.Is(shared.ErrInvalidArgument, target) {
		return true
	}
	_, ok := target.(ErrWalletTypeNotFound)
	return ok
}
