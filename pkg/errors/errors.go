package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the categories of failures the pipeline distinguishes
type ErrorType string

const (
	// ErrorTypeValidation marks malformed or invariant-violating data; never retried
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeNotFound marks a missing entity or checkpoint reference; never retried
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeNavigation marks a transient page navigation/extraction failure; retryable
	ErrorTypeNavigation ErrorType = "navigation"
	// ErrorTypeStorage marks a write that could not complete; the whole unit is retried
	ErrorTypeStorage ErrorType = "storage"
	ErrorTypeUnknown ErrorType = "unknown"
)

// Error is a typed pipeline error with an optional wrapped cause
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error with a formatted message
func New(errorType ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: errorType, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a typed error wrapping an underlying cause
func Wrap(errorType ErrorType, err error, format string, args ...interface{}) *Error {
	return &Error{Type: errorType, Message: fmt.Sprintf(format, args...), Err: err}
}

// Validation creates a ValidationError
func Validation(format string, args ...interface{}) *Error {
	return New(ErrorTypeValidation, format, args...)
}

// NotFound creates a NotFoundError
func NotFound(format string, args ...interface{}) *Error {
	return New(ErrorTypeNotFound, format, args...)
}

// Navigation creates a NavigationError
func Navigation(format string, args ...interface{}) *Error {
	return New(ErrorTypeNavigation, format, args...)
}

// Storage creates a StorageError
func Storage(format string, args ...interface{}) *Error {
	return New(ErrorTypeStorage, format, args...)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// TypeOf returns the error type of err, or ErrorTypeUnknown for untyped errors
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNavigation, ErrorTypeStorage:
		return true
	case ErrorTypeValidation, ErrorTypeNotFound:
		return false
	default:
		return false
	}
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	return TypeOf(err) == ErrorTypeValidation
}

// IsNotFound reports whether err is a NotFoundError
func IsNotFound(err error) bool {
	return TypeOf(err) == ErrorTypeNotFound
}

// IsNavigation reports whether err is a NavigationError
func IsNavigation(err error) bool {
	return TypeOf(err) == ErrorTypeNavigation
}

// IsStorage reports whether err is a StorageError
func IsStorage(err error) bool {
	return TypeOf(err) == ErrorTypeStorage
}
