// Package errors provides custom error types for the ledger API.
// All service-layer errors should use AppError to ensure consistent,
// secure error responses that never leak internal details to clients.
package errors

import (
	"errors"
	"net/http"
)

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, and optional internal error.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string { return e.Message }

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Is matches two AppErrors by code so wrapped copies still compare equal to their sentinel.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// CodeOf returns the AppError code carried by err, or "" when err is not an AppError.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Authentication & authorization errors.
var (
	ErrUnauthorized       = &AppError{Code: "UNAUTHORIZED", Message: "Authentication required", StatusCode: http.StatusUnauthorized}
	ErrInvalidCredentials = &AppError{Code: "INVALID_CREDENTIALS", Message: "Invalid email or password", StatusCode: http.StatusUnauthorized}
	ErrForbidden          = &AppError{Code: "FORBIDDEN", Message: "Access denied", StatusCode: http.StatusForbidden}
)

// Pipeline ingestion errors.
var (
	ErrInvalidAPIKey         = &AppError{Code: "INVALID_API_KEY", Message: "Invalid or missing API key", StatusCode: http.StatusUnauthorized}
	ErrPipelineNotConfigured = &AppError{Code: "PIPELINE_NOT_CONFIGURED", Message: "Pipeline endpoints are not configured", StatusCode: http.StatusServiceUnavailable}
)

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// User errors.
var (
	ErrUserNotFound   = &AppError{Code: "USER_NOT_FOUND", Message: "User not found", StatusCode: http.StatusNotFound}
	ErrDuplicateEmail = &AppError{Code: "DUPLICATE_EMAIL", Message: "A user with this email already exists", StatusCode: http.StatusConflict}
)

// Property catalog and pricing errors.
var (
	ErrPropertyNotFound  = &AppError{Code: "PROPERTY_NOT_FOUND", Message: "Property not found", StatusCode: http.StatusNotFound}
	ErrPriceUnavailable  = &AppError{Code: "PRICE_UNAVAILABLE", Message: "No current price for this property", StatusCode: http.StatusUnprocessableEntity}
	ErrPropertyNotActive = &AppError{Code: "PROPERTY_NOT_ACTIVE", Message: "Property is not open for investment", StatusCode: http.StatusBadRequest}
)

// Portfolio errors.
var (
	ErrPortfolioNotFound          = &AppError{Code: "PORTFOLIO_NOT_FOUND", Message: "Portfolio not found", StatusCode: http.StatusNotFound}
	ErrDuplicatePortfolioName     = &AppError{Code: "DUPLICATE_PORTFOLIO_NAME", Message: "A portfolio with this name already exists", StatusCode: http.StatusConflict}
	ErrPortfolioNotActive         = &AppError{Code: "PORTFOLIO_NOT_ACTIVE", Message: "Portfolio is not active", StatusCode: http.StatusBadRequest}
	ErrPortfolioHasActiveHoldings = &AppError{Code: "PORTFOLIO_HAS_ACTIVE_HOLDINGS", Message: "Portfolio still has active holdings", StatusCode: http.StatusConflict}
)

// Holding errors.
var (
	ErrHoldingNotFound          = &AppError{Code: "HOLDING_NOT_FOUND", Message: "Holding not found", StatusCode: http.StatusNotFound}
	ErrHoldingPortfolioMismatch = &AppError{Code: "HOLDING_PORTFOLIO_MISMATCH", Message: "Holding does not belong to this portfolio", StatusCode: http.StatusBadRequest}
	ErrHoldingNotActive         = &AppError{Code: "HOLDING_NOT_ACTIVE", Message: "Holding is not active", StatusCode: http.StatusBadRequest}
	ErrInsufficientQuantity     = &AppError{Code: "INSUFFICIENT_QUANTITY", Message: "Insufficient quantity for this operation", StatusCode: http.StatusBadRequest}
	ErrInvalidQuantity          = &AppError{Code: "INVALID_QUANTITY", Message: "Quantity must be greater than zero", StatusCode: http.StatusBadRequest}
)

// Transaction errors.
var (
	ErrTransactionNotFound      = &AppError{Code: "TRANSACTION_NOT_FOUND", Message: "Transaction not found", StatusCode: http.StatusNotFound}
	ErrTransactionNotReversible = &AppError{Code: "TRANSACTION_NOT_REVERSIBLE", Message: "Only completed transactions can be reversed", StatusCode: http.StatusConflict}
	ErrSamePortfolioTransfer    = &AppError{Code: "SAME_PORTFOLIO_TRANSFER", Message: "Cannot transfer to the same portfolio", StatusCode: http.StatusBadRequest}
	ErrIdempotencyKeyReused     = &AppError{Code: "IDEMPOTENCY_KEY_REUSED", Message: "Idempotency key was already used for a different request", StatusCode: http.StatusConflict}
)

// Concurrency errors.
var (
	ErrConcurrentModification = &AppError{Code: "CONCURRENT_MODIFICATION", Message: "The resource was modified concurrently, please retry", StatusCode: http.StatusConflict}
	ErrLockTimeout            = &AppError{Code: "LOCK_TIMEOUT", Message: "The resource is busy, please retry", StatusCode: http.StatusServiceUnavailable}
)
