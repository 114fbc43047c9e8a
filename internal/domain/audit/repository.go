package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/wallet-ledger/internal/domain/shared"
)

// Repository stores the audit trail with pagination support
type Repository interface {
	// Create returns ErrDuplicateEntry when the (transaction, status) pair is already recorded
	Create(ctx context.Context, entry *Entry) error
	GetByTransactionID(ctx context.Context, transactionID uuid.UUID) ([]*Entry, error)

	// GetByWalletID returns entries where the wallet is source or target, newest first
	GetByWalletID(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*Entry, error)
	CountByWalletID(ctx context.Context, walletID uuid.UUID) (int64, error)
}

// ErrDuplicateEntry indicates the (transaction, status) pair was already recorded
type ErrDuplicateEntry struct {
	TransactionID uuid.UUID
	Status        shared.TransactionStatus
}

func (e ErrDuplicateEntry) Error() string {
	return "duplicate audit entry: " + e.TransactionID.String() + " " + string(e.Status)
}

// Is implements the errors.Is interface for ErrDuplicateEntry
func (e ErrDuplicateEntry) Is(target error) bool {
	t, ok := target.(ErrDuplicateEntry)
	if !ok {
		return false
	}
	// If the target TransactionID is empty, consider it a match for any ErrDuplicateEntry
	if t.TransactionID == uuid.Nil {
		return true
	}
	return e.TransactionID == t.TransactionID && (t.Status == "" || e.Status == t.Status)
}
