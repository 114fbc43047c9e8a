package transaction

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wallet-ledger/internal/domain/shared"
)

// MaxTextLength bounds failure_reason and comment columns.
const MaxTextLength = 256

var (
	ErrInvalidAmount      = fmt.Errorf("amount must be positive: %w", shared.ErrInvalidArgument)
	ErrAmountPrecision    = fmt.Errorf("amount allows at most %d decimal places: %w", shared.AmountScale, shared.ErrInvalidArgument)
	ErrSystemWallet       = fmt.Errorf("system wallet only receives fees: %w", shared.ErrInvalidArgument)
	ErrSelfTransfer       = fmt.Errorf("self transfer not allowed: %w", shared.ErrInvalidArgument)
	ErrMissingTarget      = fmt.Errorf("transfer requires a target wallet: %w", shared.ErrInvalidArgument)
	ErrUnexpectedTarget   = fmt.Errorf("only transfers take a target wallet: %w", shared.ErrInvalidArgument)
	ErrCrossShardTransfer = fmt.Errorf("wallets live on different shards: %w", shared.ErrInvalidArgument)
	ErrCommentTooLong     = fmt.Errorf("comment exceeds %d characters: %w", MaxTextLength, shared.ErrInvalidArgument)
)

// Request carries the caller-supplied fields of a new transaction
type Request struct {
	UserID         uuid.UUID
	WalletID       uuid.UUID
	TargetWalletID *uuid.UUID
	Amount         decimal.Decimal
	Comment        string
}

// Transaction is one requested balance movement and its lifecycle
type Transaction struct {
	ID             uuid.UUID                `json:"id"`
	UserID         uuid.UUID                `json:"user_id"`
	WalletID       uuid.UUID                `json:"wallet_id"`
	TargetWalletID *uuid.UUID               `json:"target_wallet_id,omitempty"`
	Amount         decimal.Decimal          `json:"amount"`
	Fee            decimal.Decimal          `json:"fee"`
	Type           shared.TransactionType   `json:"type"`
	Status         shared.TransactionStatus `json:"status"`
	FailureReason  string                   `json:"failure_reason,omitempty"`
	Comment        string                   `json:"comment,omitempty"`
	CreatedAt      time.Time                `json:"created_at"`
	UpdatedAt      time.Time                `json:"updated_at"`
}

// New validates the request and builds a transaction in the given initial status.
func New(id uuid.UUID, txType shared.TransactionType, req Request, fee decimal.Decimal, status shared.TransactionStatus) (*Transaction, error) {
	if len([]rune(req.Comment)) > MaxTextLength {
		return nil, ErrCommentTooLong
	}
	now := time.Now().UTC()
	t := &Transaction{
		ID:             id,
		UserID:         req.UserID,
		WalletID:       req.WalletID,
		TargetWalletID: req.TargetWalletID,
		Amount:         req.Amount,
		Fee:            fee,
		Type:           txType,
		Status:         status,
		Comment:        req.Comment,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// CheckAmount accepts positive amounts the amount columns hold exactly.
func CheckAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !shared.FitsScale(amount) {
		return ErrAmountPrecision
	}
	return nil
}

// Validate checks the rules every confirmation relies on.
func (t *Transaction) Validate() error {
	if err := CheckAmount(t.Amount); err != nil {
		return err
	}
	switch t.Type {
	case shared.TransactionTypeTransfer:
		if t.TargetWalletID == nil || *t.TargetWalletID == uuid.Nil {
			return ErrMissingTarget
		}
		if *t.TargetWalletID == t.WalletID {
			return ErrSelfTransfer
		}
	case shared.TransactionTypeDeposit, shared.TransactionTypeWithdrawal:
		if t.TargetWalletID != nil {
			return ErrUnexpectedTarget
		}
	default:
		return fmt.Errorf("%w: %q: %w", shared.ErrInvalidTransactionType, t.Type, shared.ErrInvalidArgument)
	}
	return nil
}

// Total is what leaves the source wallet for debiting types.
func (t *Transaction) Total() decimal.Decimal {
	return t.Amount.Add(t.Fee)
}

// WalletIDs lists every user wallet the transaction touches.
func (t *Transaction) WalletIDs() []uuid.UUID {
	if t.TargetWalletID != nil {
		return []uuid.UUID{t.WalletID, *t.TargetWalletID}
	}
	return []uuid.UUID{t.WalletID}
}

// TransitionTo moves the transaction along PENDING -> PROCESSING -> {COMPLETED | FAILED},
// with CANCELLED reachable from either non-terminal state.
func (t *Transaction) TransitionTo(next shared.TransactionStatus) error {
	if t.Status.IsTerminal() {
		return ErrAlreadyProcessed{TransactionID: t.ID, Status: t.Status}
	}
	allowed := false
	switch t.Status {
	case shared.TransactionStatusPending:
		allowed = next == shared.TransactionStatusProcessing || next == shared.TransactionStatusCancelled
	case shared.TransactionStatusProcessing:
		allowed = next == shared.TransactionStatusCompleted ||
			next == shared.TransactionStatusFailed ||
			next == shared.TransactionStatusCancelled
	}
	if !allowed {
		return ErrInvalidTransition{TransactionID: t.ID, From: t.Status, To: next}
	}
	t.Status = next
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// Fail records the terminal FAILED state with a bounded reason.
func (t *Transaction) Fail(reason string) error {
	if err := t.TransitionTo(shared.TransactionStatusFailed); err != nil {
		return err
	}
	t.FailureReason = TruncateReason(reason)
	return nil
}

// Touch bumps updated_at without changing status.
func (t *Transaction) Touch() {
	t.UpdatedAt = time.Now().UTC()
}

// TruncateReason cuts a failure reason to the column width.
func TruncateReason(reason string) string {
	runes := []rune(reason)
	if len(runes) <= MaxTextLength {
		return reason
	}
	return string(runes[:MaxTextLength])
}

// StatusChanged snapshots the transaction for the audit trail.
func (t *Transaction) StatusChanged() shared.StatusChangedEvent {
	return shared.StatusChangedEvent{
		TransactionID:  t.ID,
		UserID:         t.UserID,
		WalletID:       t.WalletID,
		TargetWalletID: t.TargetWalletID,
		Type:           t.Type,
		Status:         t.Status,
		Amount:         t.Amount,
		Fee:            t.Fee,
		FailureReason:  t.FailureReason,
		OccurredAt:     t.UpdatedAt,
	}
}
