package shared

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Outbound settlement requests. Field names follow the payment rail contract.

// DepositRequestedEvent asks the rail to collect funds for a deposit
type DepositRequestedEvent struct {
	TransactionID uuid.UUID       `json:"transactionId"`
	UserID        uuid.UUID       `json:"userId"`
	WalletID      uuid.UUID       `json:"walletId"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Timestamp     time.Time       `json:"timestamp"`
}

// WithdrawalRequestedEvent asks the rail to pay out a withdrawal
type WithdrawalRequestedEvent struct {
	TransactionID uuid.UUID       `json:"transactionId"`
	UserID        uuid.UUID       `json:"userId"`
	WalletID      uuid.UUID       `json:"walletId"`
	Amount        decimal.Decimal `json:"amount"`
	Fee           decimal.Decimal `json:"fee"`
	Currency      string          `json:"currency"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Inbound settlement outcomes.

// DepositCompletedEvent reports funds collected for a deposit
type DepositCompletedEvent struct {
	TransactionID uuid.UUID       `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
}

// WithdrawalFailedEvent reports a payout the rail could not make
type WithdrawalFailedEvent struct {
	TransactionID uuid.UUID `json:"transactionId"`
	FailureReason string    `json:"failureReason"`
}

// WithdrawalCompletedEvent reports a payout the rail has made
type WithdrawalCompletedEvent struct {
	TransactionID uuid.UUID `json:"transactionId"`
}

// StatusChangedEvent is written to the outbox on every persisted status change
// and projected into the audit trail.
type StatusChangedEvent struct {
	TransactionID  uuid.UUID         `json:"transactionId"`
	UserID         uuid.UUID         `json:"userId"`
	WalletID       uuid.UUID         `json:"walletId"`
	TargetWalletID *uuid.UUID        `json:"targetWalletId,omitempty"`
	Type           TransactionType   `json:"type"`
	Status         TransactionStatus `json:"status"`
	Amount         decimal.Decimal   `json:"amount"`
	Fee            decimal.Decimal   `json:"fee"`
	FailureReason  string            `json:"failureReason,omitempty"`
	OccurredAt     time.Time         `json:"occurredAt"`
}
