// internal/core/errors.go
package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined errors
var (
	// Input errors
	ErrNoData          = &Error{Code: "NO_DATA", Message: "no data available"}
	ErrMisalignedInput = &Error{Code: "MISALIGNED_INPUT", Message: "price and signal series are misaligned"}
	ErrInvalidInput    = &Error{Code: "INVALID_INPUT", Message: "invalid input"}
	ErrPriceData       = &Error{Code: "PRICE_DATA_FAILED", Message: "loading price data failed"}
	ErrSignalData      = &Error{Code: "SIGNAL_DATA_FAILED", Message: "loading signal data failed"}

	// Metric errors
	ErrInvalidPeriod = &Error{Code: "INVALID_PERIOD", Message: "unsupported sharpe ratio period"}

	// Infrastructure errors
	ErrStorageFailed = &Error{Code: "STORAGE_FAILED", Message: "storage operation failed"}
	ErrFetchFailed   = &Error{Code: "FETCH_FAILED", Message: "fetching price history failed"}
	ErrJobNotFound   = &Error{Code: "JOB_NOT_FOUND", Message: "job not found"}
	ErrRunNotFound   = &Error{Code: "RUN_NOT_FOUND", Message: "backtest run not found"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}

	// API errors
	ErrUnauthorized = &Error{Code: "UNAUTHORIZED", Message: "missing or invalid API key"}

	// LLM errors
	ErrLLMFailed = &Error{Code: "LLM_FAILED", Message: "LLM request failed"}
)
