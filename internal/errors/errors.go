// Package errors defines the structured application errors shared by the store, services and HTTP layer.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode classifies an AppError. The HTTP layer maps each code to a status.
type ErrorCode string

const (
	// ErrCodeNotFound: no job with the requested id.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict: the job id exists or the tenant already has a running scan.
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeValidation: the request or a stored row failed validation.
	ErrCodeValidation ErrorCode = "validation"
	ErrCodeInternal   ErrorCode = "internal"
	ErrCodeTimeout    ErrorCode = "timeout"
	ErrCodeCanceled   ErrorCode = "canceled"
	// ErrCodeUnavailable: the job store could not be reached or stayed locked.
	ErrCodeUnavailable ErrorCode = "unavailable"
)

// AppError carries a code, a client-safe message and an optional cause.
// Field names the offending column or request field when one is known.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Field   string
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *AppError) Unwrap() error { return e.Cause }

func newError(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// NotFound reports a missing job.
func NotFound(message string) *AppError { return newError(ErrCodeNotFound, message) }

// Conflict reports a duplicate job id or a busy tenant.
func Conflict(message string) *AppError { return newError(ErrCodeConflict, message) }

// Validation reports rejected input.
func Validation(message string) *AppError { return newError(ErrCodeValidation, message) }

// Validationf is Validation with a formatted message.
func Validationf(format string, args ...any) *AppError {
	return newError(ErrCodeValidation, fmt.Sprintf(format, args...))
}

// Unavailable reports a store that cannot serve the request right now.
func Unavailable(message string) *AppError { return newError(ErrCodeUnavailable, message) }

// Wrap attaches code and message to err. A nil err stays nil.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// GetCode returns the code of the first AppError in err's chain, or "".
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the field of the first AppError in err's chain, or "".
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}

func IsNotFound(err error) bool    { return GetCode(err) == ErrCodeNotFound }
func IsConflict(err error) bool    { return GetCode(err) == ErrCodeConflict }
func IsValidation(err error) bool  { return GetCode(err) == ErrCodeValidation }
func IsUnavailable(err error) bool { return GetCode(err) == ErrCodeUnavailable }
