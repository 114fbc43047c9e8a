package transaction

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/wallet-ledger/internal/domain/shared"
)

// Repository is the transaction log of a single shard
type Repository interface {
	Create(ctx context.Context, t *Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)

	// LockForUpdate reads the transaction holding its row lock until the unit of work ends
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Transaction, error)

	// Update persists status, failure reason and updated_at
	Update(ctx context.Context, t *Transaction) error
	WithTx(tx pgx.Tx) Repository
}

// ErrTransactionNotFound indicates a missing transaction
type ErrTransactionNotFound struct {
	TransactionID uuid.UUID
}

func (e ErrTransactionNotFound) Error() string {
	return "transaction not found: " + e.TransactionID.String()
}

// Is matches any ErrTransactionNotFound when the target id is empty, and the NotFound category
func (e ErrTransactionNotFound) Is(target error) bool {
	if errors.Is(shared.ErrNotFound, target) {
		return true
	}
	t, ok := target.(ErrTransactionNotFound)
	if !ok {
		return false
	}
	if t.TransactionID == uuid.Nil {
		return true
	}
	return e.TransactionID == t.TransactionID
}

// ErrAlreadyProcessed indicates a confirm or cancel of a transaction that already left PENDING
type ErrAlreadyProcessed struct {
	TransactionID uuid.UUID
	Status        shared.TransactionStatus
}

func (e ErrAlreadyProcessed) Error() string {
	return "transaction " + e.TransactionID.String() + " already processed: " + string(e.Status)
}

func (e ErrAlreadyProcessed) Is(target error) bool {
	if errors.Is(shared.ErrAlreadyProcessed, target) {
		return true
	}
	t, ok := target.(ErrAlreadyProcessed)
	return ok && (t.TransactionID == uuid.Nil || t.TransactionID == e.TransactionID)
}

// ErrInvalidTransition indicates a status change the lifecycle does not allow
type ErrInvalidTransition struct {
	TransactionID uuid.UUID
	From          shared.TransactionStatus
	To            shared.TransactionStatus
}

func (e ErrInvalidTransition) Error() string {
	return "transaction " + e.TransactionID.String() + " cannot move from " + string(e.From) + " to " + string(e.To)
}

func (e ErrInvalidTransition) Is(target error) bool {
	if errors.Is(shared.ErrInvalidArgument, target) {
		return true
	}
	_, ok := target.(ErrInvalidTransition)
	return ok
}
