package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Validation (VAL) ----

// Validation returns a field-level validation error.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}

// ---- Wallet Business Logic (WAL) ----

func ErrInsufficientFunds() *AppError {
	return New("WAL_001", "Insufficient available balance", http.StatusBadRequest)
}

func ErrNotFound(entity string) *AppError {
	return New("WAL_002", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrAlreadyProcessed() *AppError {
	return New("WAL_003", "Transaction has already been processed", http.StatusBadRequest)
}

func ErrWalletLocked() *AppError {
	return New("WAL_004", "Wallet is locked by a concurrent operation", http.StatusLocked)
}

func ErrWalletNotActive(status string) *AppError {
	return New("WAL_005", fmt.Sprintf("Wallet is %s and cannot accept this operation", status), http.StatusForbidden)
}

// ---- Payment Gateway (GW) ----

func ErrGateway(err error) *AppError {
	return Wrap("GW_001", "Payment gateway request failed", http.StatusBadGateway, err)
}

func ErrInvalidWebhookSignature() *AppError {
	return New("GW_002", "Invalid webhook signature", http.StatusUnauthorized)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_001", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}
