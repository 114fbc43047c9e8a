package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
)

// PanicErrorCode is the error code of the envelope written for a recovered panic.
const PanicErrorCode = "INTERNAL_SERVER_ERROR"

// Recovery turns a handler panic into a 500 error envelope and one error log
// line with the stack. Broken client connections are left to gin, which
// aborts without writing.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		correlationID := GetCorrelationID(c)
		logger.Error("Panic recovered",
			"error", recovered,
			"route", c.FullPath(),
			"method", c.Request.Method,
			"correlation_id", correlationID,
			"stack", string(debug.Stack()),
		)
		_ = c.Error(fmt.Errorf("panic: %v", recovered))

		body := gin.H{"error": gin.H{
			"code":    PanicErrorCode,
			"message": "An internal server error occurred",
		}}
		if correlationID != "" {
			body["correlation_id"] = correlationID
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, body)
	})
}
