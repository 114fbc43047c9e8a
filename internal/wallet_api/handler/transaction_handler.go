package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/wallet-ledger/internal/domain/shared"
	"github.com/wallet-ledger/internal/domain/transaction"
	"github.com/wallet-ledger/internal/wallet_api/service"
)

// RefParam is the single path wildcard under /transactions. gin requires one
// name per segment, so it carries a transaction type for init, confirm and
// register, and a transaction id for execute, cancel and status.
const RefParam = "ref"

// TransactionHandler handles HTTP requests for transaction operations
type TransactionHandler struct {
	transactionService service.TransactionService
	logger             *slog.Logger
}

// NewTransactionHandler creates a new transaction handler
func NewTransactionHandler(logger *slog.Logger, transactionService service.TransactionService) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
		logger:             logger,
	}
}

// Initiate prices a transaction without persisting anything
func (h *TransactionHandler) Initiate(c *gin.Context) {
	txType, ok := h.typeParam(c)
	if !ok {
		return
	}

	var req InitiateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	quote, err := h.transactionService.Initiate(c.Request.Context(), txType, req.Amount)
	if err != nil {
		RespondLedgerError(c, err, nil)
		return
	}
	RespondOK(c, mapQuoteToResponse(quote))
}

// Confirm runs the asynchronous flow: deposits and withdrawals answer 202 while
// PROCESSING on the payment rail, transfers finish in the request. Resending a
// transactionId that was already confirmed yields 409.
func (h *TransactionHandler) Confirm(c *gin.Context) {
	txType, ok := h.typeParam(c)
	if !ok {
		return
	}
	req, id, ok := h.bindTransactionRequest(c)
	if !ok {
		return
	}

	t, err := h.transactionService.Confirm(c.Request.Context(), txType, id, req)
	if err != nil {
		RespondLedgerError(c, err, nil)
		return
	}

	if t.Status == shared.TransactionStatusProcessing {
		RespondAccepted(c, mapConfirmToResponse(t))
		return
	}
	RespondOK(c, mapConfirmToResponse(t))
}

// Register stores a PENDING transaction for a later execute. A transactionId
// from a previous quote is reused when supplied.
func (h *TransactionHandler) Register(c *gin.Context) {
	txType, ok := h.typeParam(c)
	if !ok {
		return
	}
	req, id, ok := h.bindTransactionRequest(c)
	if !ok {
		return
	}
	if id == uuid.Nil {
		id = uuid.New()
	}

	t, err := h.transactionService.Register(c.Request.Context(), txType, id, req)
	if err != nil {
		RespondLedgerError(c, err, nil)
		return
	}
	RespondCreated(c, mapTransactionToResponse(t))
}

// Execute settles a registered transaction synchronously. A business failure
// is reported with the FAILED transaction attached.
func (h *TransactionHandler) Execute(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}

	t, err := h.transactionService.Execute(c.Request.Context(), id)
	if err != nil {
		var data interface{}
		if t != nil {
			data = mapTransactionToResponse(t)
		}
		RespondLedgerError(c, err, data)
		return
	}
	RespondOK(c, mapTransactionToResponse(t))
}

// Cancel moves a PENDING transaction to CANCELLED
func (h *TransactionHandler) Cancel(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}

	t, err := h.transactionService.Cancel(c.Request.Context(), id)
	if err != nil {
		RespondLedgerError(c, err, nil)
		return
	}
	RespondOK(c, mapTransactionToResponse(t))
}

// Status reports the current state of a transaction
func (h *TransactionHandler) Status(c *gin.Context) {
	id, ok := h.idParam(c)
	if !ok {
		return
	}

	t, err := h.transactionService.Status(c.Request.Context(), id)
	if err != nil {
		RespondLedgerError(c, err, nil)
		return
	}
	RespondOK(c, mapStatusToResponse(t))
}

func (h *TransactionHandler) typeParam(c *gin.Context) (shared.TransactionType, bool) {
	raw := c.Param(RefParam)
	txType, err := shared.ParseTransactionType(raw)
	if err != nil {
		h.logger.Warn("Invalid transaction type", "type", raw)
		RespondBadRequest(c, "Invalid transaction type")
		return "", false
	}
	return txType, true
}

func (h *TransactionHandler) idParam(c *gin.Context) (uuid.UUID, bool) {
	raw := c.Param(RefParam)
	id, err := uuid.Parse(raw)
	if err != nil {
		h.logger.Warn("Invalid transaction ID", "id", raw, "error", err)
		RespondBadRequest(c, "Invalid transaction ID")
		return uuid.Nil, false
	}
	return id, true
}

// bindTransactionRequest decodes the body into a ledger request and the
// optional client-chosen transaction id.
func (h *TransactionHandler) bindTransactionRequest(c *gin.Context) (transaction.Request, uuid.UUID, bool) {
	var body TransactionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return transaction.Request{}, uuid.Nil, false
	}

	ids, err := parseUUIDs(body.UserID, body.WalletID, body.TargetWalletID, body.TransactionID)
	if err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return transaction.Request{}, uuid.Nil, false
	}

	req := transaction.Request{
		UserID:   ids[0],
		WalletID: ids[1],
		Amount:   body.Amount,
		Comment:  body.Comment,
	}
	if ids[2] != uuid.Nil {
		target := ids[2]
		req.TargetWalletID = &target
	}
	return req, ids[3], true
}

// parseUUIDs parses each raw value, leaving uuid.Nil for empty strings
func parseUUIDs(raw ...string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, len(raw))
	for i, r := range raw {
		if r == "" {
			continue
		}
		id, err := uuid.Parse(r)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}
