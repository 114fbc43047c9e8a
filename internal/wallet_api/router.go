package wallet_api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wallet-ledger/internal/wallet_api/handler"
	"github.com/wallet-ledger/internal/wallet_api/middleware"
)

// setupRouter configures API routes and middleware for the application.
// CorrelationID runs first so the request log and panic log carry the id.
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	walletHandler *handler.WalletHandler,
	transactionHandler *handler.TransactionHandler,
	gatherer prometheus.Gatherer,
	metricsPath string,
) {
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recovery(logger))

	v1 := r.Group("/api/v1")

	wallets := v1.Group("/wallets")
	{
		wallets.POST("", walletHandler.Create)
		wallets.GET("/:id", walletHandler.GetByID)
		wallets.GET("/:id/transactions", walletHandler.GetHistory)
	}

	ref := "/:" + handler.RefParam
	transactions := v1.Group("/transactions")
	{
		// by type
		transactions.POST(ref+"/init", transactionHandler.Initiate)
		transactions.POST(ref+"/confirm", transactionHandler.Confirm)
		transactions.POST(ref, transactionHandler.Register)

		// by id
		transactions.POST(ref+"/execute", transactionHandler.Execute)
		transactions.POST(ref+"/cancel", transactionHandler.Cancel)
		transactions.GET(ref+"/status", transactionHandler.Status)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})

	if gatherer != nil {
		r.GET(metricsPath, gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}
