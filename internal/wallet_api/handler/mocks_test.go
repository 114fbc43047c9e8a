package handler

import (
	"context"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/wallet-ledger/internal/domain/audit"
	"github.com/wallet-ledger/internal/domain/shared"
	"github.com/wallet-ledger/internal/domain/transaction"
	"github.com/wallet-ledger/internal/domain/wallet"
	"github.com/wallet-ledger/internal/wallet_api/service"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// envelope is Response with a raw data field for assertions
type envelope[T any] struct {
	Data          T          `json:"data"`
	Error         *ErrorInfo `json:"error,omitempty"`
	CorrelationID string     `json:"correlation_id,omitempty"`
	Meta          *MetaInfo  `json:"meta,omitempty"`
}

type MockTransactionService struct {
	mock.Mock
}

func (m *MockTransactionService) txResult(args mock.Arguments) (*transaction.Transaction, error) {
	var t *transaction.Transaction
	if args.Get(0) != nil {
		t = args.Get(0).(*transaction.Transaction)
	}
	return t, args.Error(1)
}

func (m *MockTransactionService) Initiate(ctx context.Context, txType shared.TransactionType, amount decimal.Decimal) (*transaction.Quote, error) {
	args := m.Called(ctx, txType, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transaction.Quote), args.Error(1)
}

func (m *MockTransactionService) Confirm(ctx context.Context, txType shared.TransactionType, id uuid.UUID, req transaction.Request) (*transaction.Transaction, error) {
	return m.txResult(m.Called(ctx, txType, id, req))
}

func (m *MockTransactionService) Register(ctx context.Context, txType shared.TransactionType, id uuid.UUID, req transaction.Request) (*transaction.Transaction, error) {
	return m.txResult(m.Called(ctx, txType, id, req))
}

func (m *MockTransactionService) Execute(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	return m.txResult(m.Called(ctx, id))
}

func (m *MockTransactionService) Cancel(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	return m.txResult(m.Called(ctx, id))
}

func (m *MockTransactionService) Status(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	return m.txResult(m.Called(ctx, id))
}

var _ service.TransactionService = (*MockTransactionService)(nil)

type MockWalletService struct {
	mock.Mock
}

func (m *MockWalletService) CreateWallet(ctx context.Context, params service.CreateWalletParams) (*wallet.Wallet, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Wallet), args.Error(1)
}

func (m *MockWalletService) GetWallet(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Wallet), args.Error(1)
}

func (m *MockWalletService) GetWalletHistory(ctx context.Context, id uuid.UUID, page, perPage int) ([]*audit.Entry, int64, error) {
	args := m.Called(ctx, id, page, perPage)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*audit.Entry), args.Get(1).(int64), args.Error(2)
}

var _ service.WalletService = (*MockWalletService)(nil)
