package audit

import (
	"time"

	"github.com/google/uuid"
	"github.com/wallet-ledger/internal/domain/shared"
)

// Entry is one status change of a transaction as kept in the audit trail.
// Amounts are decimal strings so the document store never rounds them.
type Entry struct {
	TransactionID  uuid.UUID                `json:"transaction_id" bson:"transaction_id"`
	UserID         uuid.UUID                `json:"user_id" bson:"user_id"`
	WalletID       uuid.UUID                `json:"wallet_id" bson:"wallet_id"`
	TargetWalletID *uuid.UUID               `json:"target_wallet_id,omitempty" bson:"target_wallet_id,omitempty"`
	Type           shared.TransactionType   `json:"type" bson:"type"`
	Status         shared.TransactionStatus `json:"status" bson:"status"`
	Amount         string                   `json:"amount" bson:"amount"`
	Fee            string                   `json:"fee" bson:"fee"`
	FailureReason  string                   `json:"failure_reason,omitempty" bson:"failure_reason,omitempty"`
	OccurredAt     time.Time                `json:"occurred_at" bson:"occurred_at"`
	RecordedAt     time.Time                `json:"recorded_at" bson:"recorded_at"`
}

// FromStatusChanged converts an outbox event into an audit entry.
func FromStatusChanged(event *shared.StatusChangedEvent) *Entry {
	return &Entry{
		TransactionID:  event.TransactionID,
		UserID:         event.UserID,
		WalletID:       event.WalletID,
		TargetWalletID: event.TargetWalletID,
		Type:           event.Type,
		Status:         event.Status,
		Amount:         event.Amount.StringFixed(4),
		Fee:            event.Fee.StringFixed(4),
		FailureReason:  event.FailureReason,
		OccurredAt:     event.OccurredAt,
		RecordedAt:     time.Now().UTC(),
	}
}
