package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventKind identifies which settlement outcome an event reports
type EventKind string

const (
	KindDepositCompleted    EventKind = "deposit.completed"
	KindWithdrawalFailed    EventKind = "withdrawal.failed"
	KindWithdrawalCompleted EventKind = "withdrawal.completed"
)

// SettlementEvent is an inbound outcome from the payment rail, decoded from any of its topics
type SettlementEvent struct {
	Kind          EventKind
	TransactionID uuid.UUID
	Amount        decimal.Decimal // deposit.completed only
	Reason        string          // withdrawal.failed only
}

// SettlementService applies settlement outcomes to the ledger.
type SettlementService interface {
	Apply(ctx context.Context, event *SettlementEvent) error
}

// Ledger is the part of the ledger engine that settles transactions
type Ledger interface {
	OnSettlementCompleted(ctx context.Context, id uuid.UUID, credited decimal.Decimal) error
	OnSettlementFailed(ctx context.Context, id uuid.UUID, reason string) error
	OnWithdrawalSettled(ctx context.Context, id uuid.UUID) error
}
