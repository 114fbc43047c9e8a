package transaction

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wallet-ledger/internal/domain/shared"
)

// FeeScale is the precision fees are rounded to, matching the amount columns.
const FeeScale = shared.AmountScale

// FeeSchedule holds the fee rate charged per transaction type
type FeeSchedule struct {
	Deposit    decimal.Decimal
	Withdrawal decimal.Decimal
	Transfer   decimal.Decimal
}

// DefaultFeeSchedule is 1% on deposits, 2% on withdrawals and 1.5% on transfers.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		Deposit:    decimal.RequireFromString("0.01"),
		Withdrawal: decimal.RequireFromString("0.02"),
		Transfer:   decimal.RequireFromString("0.015"),
	}
}

// Rate returns the configured rate for txType.
func (s FeeSchedule) Rate(txType shared.TransactionType) (decimal.Decimal, error) {
	switch txType {
	case shared.TransactionTypeDeposit:
		return s.Deposit, nil
	case shared.TransactionTypeWithdrawal:
		return s.Withdrawal, nil
	case shared.TransactionTypeTransfer:
		return s.Transfer, nil
	}
	return decimal.Zero, fmt.Errorf("%w: %q: %w", shared.ErrInvalidTransactionType, txType, shared.ErrInvalidArgument)
}

// Fee computes round4(amount * rate).
func (s FeeSchedule) Fee(txType shared.TransactionType, amount decimal.Decimal) (decimal.Decimal, error) {
	rate, err := s.Rate(txType)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate).Round(FeeScale), nil
}

// Quote is the fee preview returned by initiate
type Quote struct {
	TransactionID uuid.UUID              `json:"transactionId"`
	Type          shared.TransactionType `json:"type"`
	Amount        decimal.Decimal        `json:"amount"`
	Fee           decimal.Decimal        `json:"fee"`
	TotalAmount   decimal.Decimal        `json:"totalAmount"`
}

// NewQuote prices amount for txType under id.
func (s FeeSchedule) NewQuote(id uuid.UUID, txType shared.TransactionType, amount decimal.Decimal) (*Quote, error) {
	if err := CheckAmount(amount); err != nil {
		return nil, err
	}
	fee, err := s.Fee(txType, amount)
	if err != nil {
		return nil, err
	}
	return &Quote{
		TransactionID: id,
		Type:          txType,
		Amount:        amount,
		Fee:           fee,
		TotalAmount:   amount.Add(fee),
	}, nil
}
