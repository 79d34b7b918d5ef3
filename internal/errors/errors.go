// Package errors defines the application error taxonomy shared by the data
// layer and the services above it. Repositories translate driver errors into
// AppError values so callers can branch on the category without importing
// pgx.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes an application error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates a collision with existing data, such as a
	// duplicate fan-out job hitting a unique index.
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeForeignKey indicates a reference to a row that does not exist,
	// or a delete blocked by a referencing row.
	ErrCodeForeignKey ErrorCode = "foreign_key"
	// ErrCodeInternal indicates an unclassified server-side failure.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates the operation's deadline expired.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation's context was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
)

// AppError carries a code, a human-readable message, and an optional cause.
// It participates in errors.Is / errors.As chains through Unwrap.
type AppError struct {
	Code    ErrorCode
	Message string
	// Cause is the underlying error, when there is one.
	Cause error
	// Field names the offending column for validation and conflict errors.
	Field string
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// NotFound creates a NotFound error.
func NotFound(message string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message}
}

// NotFoundf creates a NotFound error with a formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict creates a Conflict error.
func Conflict(message string) *AppError {
	return &AppError{Code: ErrCodeConflict, Message: message}
}

// Validation creates a Validation error.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message}
}

// Validationf creates a Validation error with a formatted message.
func Validationf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationField creates a Validation error tied to a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

// ForeignKey creates a ForeignKey error.
func ForeignKey(message string) *AppError {
	return &AppError{Code: ErrCodeForeignKey, Message: message}
}

// Internal creates an Internal error.
func Internal(message string) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: message}
}

// Wrap attaches a code and message to an existing error, preserving the
// cause. Returns nil when err is nil.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool {
	return isCode(err, ErrCodeNotFound)
}

// IsConflict reports whether err is a Conflict error.
func IsConflict(err error) bool {
	return isCode(err, ErrCodeConflict)
}

// IsValidation reports whether err is a Validation error.
func IsValidation(err error) bool {
	return isCode(err, ErrCodeValidation)
}

// IsForeignKey reports whether err is a ForeignKey error.
func IsForeignKey(err error) bool {
	return isCode(err, ErrCodeForeignKey)
}

// IsInternal reports whether err is an Internal error.
func IsInternal(err error) bool {
	return isCode(err, ErrCodeInternal)
}

// IsTimeout reports whether err is a Timeout error.
func IsTimeout(err error) bool {
	return isCode(err, ErrCodeTimeout)
}

// IsCanceled reports whether err is a Canceled error.
func IsCanceled(err error) bool {
	return isCode(err, ErrCodeCanceled)
}

// GetCode returns the ErrorCode carried by err, or "" for non-AppErrors.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field carried by err, or "" when absent.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
