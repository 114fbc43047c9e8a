package transaction

import (
	"context"
	"fmt"

	"github.com/wallet-ledger/internal/domain/shared"
)

// Cases is the closed set of per-type behaviours. Adding a transaction type
// means adding a method here, which breaks every implementation until it
// handles the new type.
type Cases[R any] interface {
	Deposit(ctx context.Context, t *Transaction) (R, error)
	Withdrawal(ctx context.Context, t *Transaction) (R, error)
	Transfer(ctx context.Context, t *Transaction) (R, error)
}

// Dispatch selects the case for t.Type.
func Dispatch[R any](ctx context.Context, t *Transaction, cases Cases[R]) (R, error) {
	switch t.Type {
	case shared.TransactionTypeDeposit:
		return cases.Deposit(ctx, t)
	case shared.TransactionTypeWithdrawal:
		return cases.Withdrawal(ctx, t)
	case shared.TransactionTypeTransfer:
		return cases.Transfer(ctx, t)
	}
	var zero R
	return zero, fmt.Errorf("%w: %q: %w", shared.ErrInvalidTransactionType, t.Type, shared.ErrInvalidArgument)
}
