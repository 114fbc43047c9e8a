package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wallet-ledger/internal/wallet_api/service"
)

// WalletHandler handles HTTP requests for wallet operations
type WalletHandler struct {
	walletService service.WalletService
	logger        *slog.Logger
}

// NewWalletHandler creates a new wallet handler
func NewWalletHandler(logger *slog.Logger, walletService service.WalletService) *WalletHandler {
	return &WalletHandler{
		walletService: walletService,
		logger:        logger,
	}
}

// Create opens a wallet for a user in one currency
func (h *WalletHandler) Create(c *gin.Context) {
	var req CreateWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		RespondBadRequest(c, "Invalid user ID")
		return
	}

	params := service.CreateWalletParams{
		UserID:         userID,
		Currency:       req.Currency,
		Name:           req.Name,
		InitialBalance: decimal.Zero,
	}
	if req.InitialBalance != nil {
		params.InitialBalance = *req.InitialBalance
	}

	w, err := h.walletService.CreateWallet(c.Request.Context(), params)
	if err != nil {
		RespondLedgerError(c, err, nil)
		return
	}
	RespondCreated(c, mapWalletToResponse(w))
}

// GetByID returns a wallet with its current balance
func (h *WalletHandler) GetByID(c *gin.Context) {
	id, ok := h.walletID(c)
	if !ok {
		return
	}

	w, err := h.walletService.GetWallet(c.Request.Context(), id)
	if err != nil {
		RespondLedgerError(c, err, nil)
		return
	}
	RespondOK(c, mapWalletToResponse(w))
}

// GetHistory returns the paginated audit trail of a wallet
func (h *WalletHandler) GetHistory(c *gin.Context) {
	id, ok := h.walletID(c)
	if !ok {
		return
	}

	var params PaginationParams
	if err := c.ShouldBindQuery(&params); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters: "+err.Error())
		return
	}

	entries, total, err := h.walletService.GetWalletHistory(c.Request.Context(), id, params.Page, params.PerPage)
	if err != nil {
		RespondLedgerError(c, err, nil)
		return
	}

	response := make([]HistoryEntryResponse, 0, len(entries))
	for _, e := range entries {
		response = append(response, mapEntryToResponse(e))
	}
	RespondWithPaginatedData(c, http.StatusOK, response, params.Page, params.PerPage, int(total))
}

func (h *WalletHandler) walletID(c *gin.Context) (uuid.UUID, bool) {
	raw := c.Param("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		h.logger.Warn("Invalid wallet ID", "id", raw, "error", err)
		RespondBadRequest(c, "Invalid wallet ID")
		return uuid.Nil, false
	}
	return id, true
}
