package handler

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/wallet-ledger/internal/domain/audit"
	"github.com/wallet-ledger/internal/domain/transaction"
	"github.com/wallet-ledger/internal/domain/wallet"
)

// Amounts travel as decimal strings, e.g. "100.00" or 100.00 on input and
// "100.0000" on output.

// InitiateTransactionRequest asks for a fee quote
type InitiateTransactionRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// TransactionRequest carries the fields of a new transaction
type TransactionRequest struct {
	TransactionID  string          `json:"transactionId" binding:"omitempty,uuid"`
	UserID         string          `json:"userId" binding:"required,uuid"`
	WalletID       string          `json:"walletId" binding:"required,uuid"`
	TargetWalletID string          `json:"targetWalletId" binding:"omitempty,uuid"`
	Amount         decimal.Decimal `json:"amount"`
	Comment        string          `json:"comment" binding:"max=256"`
}

// CreateWalletRequest represents a request to open a wallet
type CreateWalletRequest struct {
	UserID         string           `json:"userId" binding:"required,uuid"`
	Currency       string           `json:"currency" binding:"required"`
	Name           string           `json:"name" binding:"max=32"`
	InitialBalance *decimal.Decimal `json:"initialBalance"`
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=10" binding:"min=1,max=100"`
}

type QuoteResponse struct {
	TransactionID string `json:"transactionId"`
	Type          string `json:"type"`
	Amount        string `json:"amount"`
	Fee           string `json:"fee"`
	TotalAmount   string `json:"totalAmount"`
}

type ConfirmResponse struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	FailureReason string `json:"failureReason,omitempty"`
	ConfirmedAt   string `json:"confirmedAt"`
}

type StatusResponse struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	Amount        string `json:"amount"`
	CreatedAt     string `json:"createdAt"`
}

type TransactionResponse struct {
	TransactionID  string `json:"transactionId"`
	UserID         string `json:"userId"`
	WalletID       string `json:"walletId"`
	TargetWalletID string `json:"targetWalletId,omitempty"`
	Type           string `json:"type"`
	Status         string `json:"status"`
	Amount         string `json:"amount"`
	Fee            string `json:"fee"`
	FailureReason  string `json:"failureReason,omitempty"`
	Comment        string `json:"comment,omitempty"`
	CreatedAt      string `json:"createdAt"`
	UpdatedAt      string `json:"updatedAt"`
}

type WalletResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
	Balance   string `json:"balance"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type HistoryEntryResponse struct {
	TransactionID  string `json:"transactionId"`
	WalletID       string `json:"walletId"`
	TargetWalletID string `json:"targetWalletId,omitempty"`
	Type           string `json:"type"`
	Status         string `json:"status"`
	Amount         string `json:"amount"`
	Fee            string `json:"fee"`
	FailureReason  string `json:"failureReason,omitempty"`
	OccurredAt     string `json:"occurredAt"`
}

func formatAmount(d decimal.Decimal) string {
	return d.StringFixed(wallet.Scale)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func mapQuoteToResponse(q *transaction.Quote) QuoteResponse {
	return QuoteResponse{
		TransactionID: q.TransactionID.String(),
		Type:          string(q.Type),
		Amount:        formatAmount(q.Amount),
		Fee:           formatAmount(q.Fee),
		TotalAmount:   formatAmount(q.TotalAmount),
	}
}

func mapConfirmToResponse(t *transaction.Transaction) ConfirmResponse {
	return ConfirmResponse{
		TransactionID: t.ID.String(),
		Status:        string(t.Status),
		FailureReason: t.FailureReason,
		ConfirmedAt:   formatTime(t.UpdatedAt),
	}
}

func mapStatusToResponse(t *transaction.Transaction) StatusResponse {
	return StatusResponse{
		TransactionID: t.ID.String(),
		Status:        string(t.Status),
		Amount:        formatAmount(t.Amount),
		CreatedAt:     formatTime(t.CreatedAt),
	}
}

func mapTransactionToResponse(t *transaction.Transaction) TransactionResponse {
	response := TransactionResponse{
		TransactionID: t.ID.String(),
		UserID:        t.UserID.String(),
		WalletID:      t.WalletID.String(),
		Type:          string(t.Type),
		Status:        string(t.Status),
		Amount:        formatAmount(t.Amount),
		Fee:           formatAmount(t.Fee),
		FailureReason: t.FailureReason,
		Comment:       t.Comment,
		CreatedAt:     formatTime(t.CreatedAt),
		UpdatedAt:     formatTime(t.UpdatedAt),
	}
	if t.TargetWalletID != nil {
		response.TargetWalletID = t.TargetWalletID.String()
	}
	return response
}

func mapWalletToResponse(w *wallet.Wallet) WalletResponse {
	return WalletResponse{
		ID:        w.ID.String(),
		UserID:    w.UserID.String(),
		Name:      w.Name,
		Currency:  w.Currency,
		Status:    string(w.Status),
		Balance:   formatAmount(w.Balance),
		CreatedAt: formatTime(w.CreatedAt),
		UpdatedAt: formatTime(w.UpdatedAt),
	}
}

func mapEntryToResponse(e *audit.Entry) HistoryEntryResponse {
	response := HistoryEntryResponse{
		TransactionID: e.TransactionID.String(),
		WalletID:      e.WalletID.String(),
		Type:          string(e.Type),
		Status:        string(e.Status),
		Amount:        e.Amount,
		Fee:           e.Fee,
		FailureReason: e.FailureReason,
		OccurredAt:    formatTime(e.OccurredAt),
	}
	if e.TargetWalletID != nil {
		response.TargetWalletID = e.TargetWalletID.String()
	}
	return response
}
