// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard sentinel errors
var (
	ErrUnauthorized         = errors.New("not authenticated")
	ErrForbidden            = errors.New("forbidden")
	ErrNotFound             = errors.New("not found")
	ErrDuplicate            = errors.New("already exists")
	ErrInputValidation      = errors.New("input validation failed")
	ErrOverExit             = errors.New("exit quantity exceeds open quantity")
	ErrTradeClosed          = errors.New("trade is already closed")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrUnsupported          = errors.New("operation not supported")
	ErrProviderUnavailable  = errors.New("payment provider unavailable")
	ErrSubscriptionRequired = errors.New("active subscription required")
	ErrRateLimited          = errors.New("rate limited")
	ErrConfigInvalid        = errors.New("invalid configuration")
	ErrDatabaseError        = errors.New("database error")
)

// ProviderError represents an error returned by an external API (payment gateway, email service).
type ProviderError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider error [%s] %d %s: %s: %v", e.Provider, e.StatusCode, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("provider error [%s] %d %s: %s", e.Provider, e.StatusCode, e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the call may succeed if repeated later.
func (e *ProviderError) Retryable() bool {
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// NewProviderError creates a new ProviderError.
func NewProviderError(provider string, status int, code, message string, err error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		StatusCode: status,
		Code:       code,
		Message:    message,
		Err:        err,
	}
}

// TradeError represents an error related to a trade lifecycle operation.
type TradeError struct {
	TradeID string
	Action  string
	Reason  string
	Err     error
}

func (e *TradeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("trade error [%s] %s: %s: %v", e.TradeID, e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("trade error [%s] %s: %s", e.TradeID, e.Action, e.Reason)
}

func (e *TradeError) Unwrap() error {
	return e.Err
}

// NewTradeError creates a new TradeError.
func NewTradeError(tradeID, action, reason string, err error) *TradeError {
	return &TradeError{
		TradeID: tradeID,
		Action:  action,
		Reason:  reason,
		Err:     err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// Unwrap lets callers match validation failures with errors.Is(err, ErrInputValidation).
func (e *ValidationError) Unwrap() error {
	return ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// DataError represents a data-related error.
type DataError struct {
	Entity  string
	ID      string
	Message string
	Err     error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.Entity, e.ID, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.Entity, e.ID, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(entity, id, message string, err error) *DataError {
	return &DataError{
		Entity:  entity,
		ID:      id,
		Message: message,
		Err:     err,
	}
}

// NotFound returns a DataError wrapping ErrNotFound.
func NotFound(entity, id string) error {
	return NewDataError(entity, id, "not found", ErrNotFound)
}

// HTTPStatus maps an error chain to the HTTP status code returned to API clients.
func HTTPStatus(err error) int {
	var pe *ProviderError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrTradeClosed), errors.Is(err, ErrOverExit):
		return http.StatusConflict
	case errors.Is(err, ErrInputValidation), errors.Is(err, ErrUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, ErrSubscriptionRequired):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrProviderUnavailable), errors.As(err, &pe):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is errors.New, re-exported so callers need a single import.
func New(text string) error {
	return errors.New(text)
}
