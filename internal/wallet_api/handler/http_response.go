package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wallet-ledger/internal/domain/shared"
	"github.com/wallet-ledger/internal/wallet_api/middleware"
)

// RetryAfterSeconds is advertised on 503 responses caused by lock contention.
const RetryAfterSeconds = 1

// Response represents a standard API response
type Response struct {
	Data          interface{} `json:"data,omitempty"`
	Error         *ErrorInfo  `json:"error,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Meta          *MetaInfo   `json:"meta,omitempty"`
}

// ErrorInfo represents error information in a response
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MetaInfo represents metadata in a response
type MetaInfo struct {
	Page       int `json:"page,omitempty"`
	PerPage    int `json:"per_page,omitempty"`
	TotalPages int `json:"total_pages,omitempty"`
	TotalItems int `json:"total_items,omitempty"`
}

// NewPaginatedResponse creates a new paginated response
func NewPaginatedResponse(data interface{}, page, perPage, totalItems int) *Response {
	totalPages := totalItems / perPage
	if totalItems%perPage > 0 {
		totalPages++
	}

	return &Response{
		Data: data,
		Meta: &MetaInfo{
			Page:       page,
			PerPage:    perPage,
			TotalPages: totalPages,
			TotalItems: totalItems,
		},
	}
}

func respond(c *gin.Context, statusCode int, response *Response) {
	response.CorrelationID = middleware.GetCorrelationID(c)
	c.JSON(statusCode, response)
}

// RespondWithData sends a JSON response with data
func RespondWithData(c *gin.Context, statusCode int, data interface{}) {
	respond(c, statusCode, &Response{Data: data})
}

// RespondWithError sends a JSON response with an error
func RespondWithError(c *gin.Context, statusCode int, code, message string) {
	respond(c, statusCode, &Response{Error: &ErrorInfo{Code: code, Message: message}})
}

// RespondWithPaginatedData sends a JSON response with paginated data
func RespondWithPaginatedData(c *gin.Context, statusCode int, data interface{}, page, perPage, totalItems int) {
	respond(c, statusCode, NewPaginatedResponse(data, page, perPage, totalItems))
}

func RespondOK(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusOK, data)
}

func RespondCreated(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusCreated, data)
}

func RespondAccepted(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusAccepted, data)
}

// RespondBadRequest sends a 400 Bad Request response with an error
func RespondBadRequest(c *gin.Context, message string) {
	RespondWithError(c, http.StatusBadRequest, shared.CategoryInvalidArgument, message)
}

// RespondLedgerError maps the error category of err onto the HTTP status.
// data, when not nil, is sent alongside the error.
func RespondLedgerError(c *gin.Context, err error, data interface{}) {
	_ = c.Error(err)
	status, code := statusFor(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "An internal server error occurred"
	}
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", strconv.Itoa(RetryAfterSeconds))
	}

	respond(c, status, &Response{
		Data:  data,
		Error: &ErrorInfo{Code: code, Message: message},
	})
}

func statusFor(err error) (int, string) {
	switch code := shared.CategoryOf(err); code {
	case shared.CategoryNotFound:
		return http.StatusNotFound, code
	case shared.CategoryInvalidArgument:
		return http.StatusBadRequest, code
	case shared.CategoryAlreadyProcessed:
		return http.StatusConflict, code
	case shared.CategoryInsufficientFunds:
		return http.StatusUnprocessableEntity, code
	case shared.CategoryContended:
		return http.StatusServiceUnavailable, code
	default:
		if errors.Is(err, shared.ErrPersistence) {
			return http.StatusInternalServerError, shared.CategoryPersistence
		}
		return http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"
	}
}
