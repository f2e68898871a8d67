// Package apperror provides structured error handling for the persistence layer.
// Faults raised by tracked objects and the session use AppError so callers can
// branch on a stable code instead of matching message text.
package apperror

import (
	"errors"
	"fmt"
)

// Error codes
const (
	// Infrastructure errors
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"

	// Handle faults
	CodeOrphanedHandle = "USING_ORPHANED_HANDLE"
	CodeNullHandle     = "NULL_HANDLE"

	// Contract violations (privileged operation misuse, unmapped types)
	CodeContract = "CONTRACT_VIOLATION"

	// Persistence conflicts
	CodeNotFound               = "NOT_FOUND"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
)

// AppError is the standard error type for the platform.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (table, id, state)
	Details map[string]any `json:"details,omitempty"`

	// Err is the underlying error
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions for common errors ---

// NewOrphanedHandle is returned when a mutation is attempted on an object
// its session has detached.
func NewOrphanedHandle() *AppError {
	return &AppError{
		Code:    CodeOrphanedHandle,
		Message: "using orphaned dbo ptr",
	}
}

// NewNullHandle is returned when a null handle is dereferenced.
func NewNullHandle() *AppError {
	return &AppError{
		Code:    CodeNullHandle,
		Message: "dereferencing null dbo ptr",
	}
}

// NewContract creates a contract violation error
func NewContract(message string) *AppError {
	return &AppError{
		Code:    CodeContract,
		Message: message,
	}
}

// NewNotFound creates a not found error
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", entity),
		Details: map[string]any{"entity": entity, "id": id},
	}
}

// NewConcurrentModification creates an optimistic locking error
func NewConcurrentModification(entity string, id any) *AppError {
	return &AppError{
		Code:    CodeConcurrentModification,
		Message: "Record was modified by another session",
		Details: map[string]any{"entity": entity, "id": id},
	}
}

// NewDatabase wraps a driver error raised while flushing or loading.
func NewDatabase(op string, err error) *AppError {
	return (&AppError{Code: CodeDatabase, Message: op}).WithCause(err)
}

// NewInternal creates an internal error
func NewInternal(err error) *AppError {
	return (&AppError{Code: CodeInternal, Message: "Internal error"}).WithCause(err)
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsOrphanedHandle checks if error is CodeOrphanedHandle
func IsOrphanedHandle(err error) bool {
	return HasCode(err, CodeOrphanedHandle)
}

// IsNullHandle checks if error is CodeNullHandle
func IsNullHandle(err error) bool {
	return HasCode(err, CodeNullHandle)
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// IsConcurrentModification checks if error is CodeConcurrentModification
func IsConcurrentModification(err error) bool {
	return HasCode(err, CodeConcurrentModification)
}
