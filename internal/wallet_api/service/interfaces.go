package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wallet-ledger/internal/domain/audit"
	"github.com/wallet-ledger/internal/domain/shared"
	"github.com/wallet-ledger/internal/domain/transaction"
	"github.com/wallet-ledger/internal/domain/wallet"
)

// CreateWalletParams carries the caller-supplied fields of a new wallet
type CreateWalletParams struct {
	UserID         uuid.UUID
	Currency       string
	Name           string
	InitialBalance decimal.Decimal
}

// WalletService defines wallet operations
type WalletService interface {
	CreateWallet(ctx context.Context, params CreateWalletParams) (*wallet.Wallet, error)
	GetWallet(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error)
	GetWalletHistory(ctx context.Context, id uuid.UUID, page, perPage int) ([]*audit.Entry, int64, error)
}

// TransactionService defines transaction operations
type TransactionService interface {
	Initiate(ctx context.Context, txType shared.TransactionType, amount decimal.Decimal) (*transaction.Quote, error)
	Confirm(ctx context.Context, txType shared.TransactionType, id uuid.UUID, req transaction.Request) (*transaction.Transaction, error)
	Register(ctx context.Context, txType shared.TransactionType, id uuid.UUID, req transaction.Request) (*transaction.Transaction, error)
	Execute(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error)
	Cancel(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error)
	Status(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error)
}

// Ledger is the part of the ledger engine the HTTP surface drives
type Ledger interface {
	Initiate(txType shared.TransactionType, amount decimal.Decimal) (*transaction.Quote, error)
	Register(ctx context.Context, txType shared.TransactionType, id uuid.UUID, req transaction.Request) (*transaction.Transaction, error)
	ConfirmSynchronous(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error)
	ConfirmAsynchronous(ctx context.Context, txType shared.TransactionType, id uuid.UUID, req transaction.Request) (*transaction.Transaction, error)
	Cancel(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error)
	Status(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error)
}

// WalletCache is the read-through wallet cache
type WalletCache interface {
	Get(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error)
	Set(ctx context.Context, w *wallet.Wallet) error
}
