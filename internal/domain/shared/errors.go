package shared

import "errors"

// Error categories. Every error surfaced by the ledger matches exactly one of
// these through errors.Is, so transports can map them without knowing the
// concrete domain error.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrAlreadyProcessed  = errors.New("already processed")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrContended         = errors.New("resource contended")
	ErrPersistence       = errors.New("persistence failure")
)

var (
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrInvalidCurrency        = errors.New("currency must be a 3-letter code")
)

// Category codes returned by CategoryOf.
const (
	CategoryNotFound          = "NOT_FOUND"
	CategoryInvalidArgument   = "INVALID_ARGUMENT"
	CategoryAlreadyProcessed  = "ALREADY_PROCESSED"
	CategoryInsufficientFunds = "INSUFFICIENT_FUNDS"
	CategoryContended         = "CONTENDED"
	CategoryPersistence       = "PERSISTENCE"
	CategoryUnknown           = "UNKNOWN"
)

// CategoryOf returns the stable category code of err.
func CategoryOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return CategoryNotFound
	case errors.Is(err, ErrInvalidArgument):
		return CategoryInvalidArgument
	case errors.Is(err, ErrAlreadyProcessed):
		return CategoryAlreadyProcessed
	case errors.Is(err, ErrInsufficientFunds):
		return CategoryInsufficientFunds
	case errors.Is(err, ErrContended):
		return CategoryContended
	case errors.Is(err, ErrPersistence):
		return CategoryPersistence
	default:
		return CategoryUnknown
	}
}
