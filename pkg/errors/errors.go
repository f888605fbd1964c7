package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Status  int                    `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict     = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss    = New("CACHE_MISS", http.StatusNotFound, "cache miss")

	// Ledger and allocation errors surfaced to callers.
	ErrInsufficientInventory = New("INSUFFICIENT_INVENTORY", http.StatusConflict, "requested quantity exceeds available stock")
	ErrNotOwner              = New("NOT_OWNER", http.StatusForbidden, "organization does not own the referenced units")
	ErrTimeWindowExceeded    = New("TIME_WINDOW_EXCEEDED", http.StatusConflict, "recall window has expired")
	ErrAlreadyReversed       = New("ALREADY_REVERSED", http.StatusConflict, "batch has already been reversed")
	ErrReasonRequired        = New("REASON_REQUIRED", http.StatusBadRequest, "a reason is required")
	ErrReasonTooLong         = New("REASON_TOO_LONG", http.StatusBadRequest, "reason exceeds maximum length")
	ErrInvalidQuantity       = New("INVALID_QUANTITY", http.StatusBadRequest, "quantity must be a positive integer")
	ErrCodesNotOwned         = New("CODES_NOT_OWNED", http.StatusConflict, "one or more units are no longer held by the organization")
	ErrAllocationConflict    = New("ALLOCATION_CONFLICT", http.StatusConflict, "allocation lost a concurrent commit race")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WithDetails returns a copy of the error carrying structured context,
// e.g. the shortfall count on INSUFFICIENT_INVENTORY.
func WithDetails(err *Error, details map[string]interface{}) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	clone.Details = details
	return &clone
}

// Is reports whether err matches the target error code.
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == target.Code
}
