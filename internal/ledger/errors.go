package ledger

import (
	"errors"

	"github.com/google/uuid"
	"github.com/wallet-ledger/internal/domain/shared"
)

// ErrCurrencyMismatch rejects a transfer between wallets of different currencies
type ErrCurrencyMismatch struct {
	From string
	To   string
}

func (e ErrCurrencyMismatch) Error() string {
	return "cannot transfer from " + e.From + " to " + e.To
}

func (e ErrCurrencyMismatch) Is(target error) bool {
	if errors.Is(shared.ErrInvalidArgument, target) {
		return true
	}
	_, ok := target.(ErrCurrencyMismatch)
	return ok
}

// ErrSettlementMismatch indicates a settlement event for a transaction of another type
type ErrSettlementMismatch struct {
	TransactionID uuid.UUID
	Expected      shared.TransactionType
	Actual        shared.TransactionType
}

func (e ErrSettlementMismatch) Error() string {
	return "settlement for " + string(e.Expected) + " received for " + string(e.Actual) +
		" transaction " + e.TransactionID.String()
}

func (e ErrSettlementMismatch) Is(target error) bool {
	if errors.Is(shared.ErrInvalidArgument, target) {
		return true
	}
	_, ok := target.(ErrSettlementMismatch)
	return ok
}

// failureReason is the reason recorded on a transaction that failed with err.
func failureReason(err error) string {
	switch {
	case errors.Is(err, shared.ErrInsufficientFunds):
		return string(shared.FailureReasonInsufficientFunds)
	case errors.Is(err, shared.ErrNotFound):
		return string(shared.FailureReasonWalletNotFound)
	case errors.Is(err, ErrCurrencyMismatch{}):
		return err.Error()
	case errors.Is(err, shared.ErrInvalidArgument):
		return string(shared.FailureReasonInvalidAmount)
	}
	return err.Error()
}

// isBusinessFailure reports errors that fail the transaction rather than the unit of work.
func isBusinessFailure(err error) bool {
	return errors.Is(err, shared.ErrInsufficientFunds) ||
		errors.Is(err, shared.ErrNotFound) ||
		errors.Is(err, shared.ErrInvalidArgument)
}

func isInsufficientFunds(err error) bool {
	return errors.Is(err, shared.ErrInsufficientFunds)
}
