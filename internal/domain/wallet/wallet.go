package wallet

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wallet-ledger/internal/domain/shared"
)

// Scale is the number of fractional digits balances are stored with.
const Scale = shared.AmountScale

// MaxNameLength bounds the wallet display name.
const MaxNameLength = 32

var (
	ErrInvalidAmount    = fmt.Errorf("amount must be positive: %w", shared.ErrInvalidArgument)
	ErrNegativeAmount   = fmt.Errorf("initial balance cannot be negative: %w", shared.ErrInvalidArgument)
	ErrBalancePrecision = fmt.Errorf("initial balance allows at most %d decimal places: %w", Scale, shared.ErrInvalidArgument)
	ErrNameTooLong      = fmt.Errorf("wallet name exceeds %d characters: %w", MaxNameLength, shared.ErrInvalidArgument)
)

// Wallet holds the balance of one user in one currency
type Wallet struct {
	ID           uuid.UUID           `json:"id"`
	UserID       uuid.UUID           `json:"user_id"`
	WalletTypeID uuid.UUID           `json:"wallet_type_id"`
	Name         string              `json:"name"`
	Currency     string              `json:"currency"`
	Status       shared.WalletStatus `json:"status"`
	Balance      decimal.Decimal     `json:"balance"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// WalletType is a currency a wallet may be opened in
type WalletType struct {
	ID           uuid.UUID           `json:"id"`
	Name         string              `json:"name"`
	CurrencyCode string              `json:"currency_code"`
	Status       shared.WalletStatus `json:"status"`
}

// NewWallet builds an ACTIVE wallet for the given type. An empty name defaults to "<CUR> wallet".
func NewWallet(id, userID uuid.UUID, walletType *WalletType, name string, initialBalance decimal.Decimal) (*Wallet, error) {
	if initialBalance.IsNegative() {
		return nil, ErrNegativeAmount
	}
	if !shared.FitsScale(initialBalance) {
		return nil, ErrBalancePrecision
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultName(walletType.CurrencyCode)
	}
	if len([]rune(name)) > MaxNameLength {
		return nil, ErrNameTooLong
	}

	now := time.Now().UTC()
	return &Wallet{
		ID:           id,
		UserID:       userID,
		WalletTypeID: walletType.ID,
		Name:         name,
		Currency:     walletType.CurrencyCode,
		Status:       shared.WalletStatusActive,
		Balance:      initialBalance,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// DefaultName is the display name given to wallets created without one.
func DefaultName(currency string) string {
	return currency + " wallet"
}

// NormalizeCurrency upper-cases and validates an ISO-4217 style code.
func NormalizeCurrency(currency string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if len(code) != 3 {
		return "", fmt.Errorf("%w: %w", shared.ErrInvalidCurrency, shared.ErrInvalidArgument)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("%w: %w", shared.ErrInvalidCurrency, shared.ErrInvalidArgument)
		}
	}
	return code, nil
}

// IsActive reports whether the wallet may take part in new movements.
func (w *Wallet) IsActive() bool {
	return w.Status == shared.WalletStatusActive
}

// Credit adds amount to the balance
func (w *Wallet) Credit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	w.Balance = w.Balance.Add(amount)
	w.UpdatedAt = time.Now().UTC()
	return nil
}

// Debit subtracts amount from the balance, refusing to go below zero
func (w *Wallet) Debit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !w.CanDebit(amount) {
		return ErrInsufficientFunds{WalletID: w.ID, Balance: w.Balance, Requested: amount}
	}
	w.Balance = w.Balance.Sub(amount)
	w.UpdatedAt = time.Now().UTC()
	return nil
}

// CanDebit checks if the wallet holds at least amount
func (w *Wallet) CanDebit(amount decimal.Decimal) bool {
	return w.Balance.GreaterThanOrEqual(amount)
}

// ErrInsufficientFunds is returned by Debit when the balance would go negative
type ErrInsufficientFunds struct {
	WalletID  uuid.UUID
	Balance   decimal.Decimal
	Requested decimal.Decimal
}

func (e ErrInsufficientFunds) Error() string {
	return fmt.Sprintf("insufficient funds in wallet %s: balance %s, requested %s",
		e.WalletID, e.Balance.StringFixed(Scale), e.Requested.StringFixed(Scale))
}

func (e ErrInsufficientFunds) Is(target error) bool {
	if errors.Is(shared.ErrInsufficientFunds, target) {
		return true
	}
	t, ok := target.(ErrInsufficientFunds)
	return ok && (t.WalletID == uuid.Nil || t.WalletID == e.WalletID)
}
