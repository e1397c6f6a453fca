// Package errors provides structured error types for the reindex benchmark.
// All errors include a category, code, message, and retryable flag so that
// store failures can be classified the same way on both sides of the wire.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by the operation that produced them.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryBucket     ErrorCategory = "BUCKET"
	ErrCategoryWrite      ErrorCategory = "WRITE"
	ErrCategoryReindex    ErrorCategory = "REINDEX"
	ErrCategoryTransport  ErrorCategory = "TRANSPORT"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes.
const (
	// Validation codes
	CodeInvalidSchema   = "INVALID_SCHEMA"
	CodeInvalidArgument = "INVALID_ARGUMENT"

	// Bucket codes
	CodeBucketNotFound = "BUCKET_NOT_FOUND"
	CodeBucketExists   = "BUCKET_EXISTS"
	CodeBucketVersion  = "BUCKET_VERSION"

	// Write codes
	CodeUniqueAttribute  = "UNIQUE_ATTRIBUTE"
	CodeInvalidIndexType = "INVALID_INDEX_TYPE"

	// Transport and load codes
	CodeTimeout     = "TIMEOUT"
	CodeOverloaded  = "OVERLOADED"
	CodeUnavailable = "UNAVAILABLE"

	// Reindex codes
	CodeReindexFailed = "REINDEX_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// StoreError is the structured error type returned by store implementations.
type StoreError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *StoreError) Is(target error) bool {
	var t *StoreError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new StoreError.
func New(category ErrorCategory, code, message string) *StoreError {
	return &StoreError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(code),
	}
}

// Wrap creates a new StoreError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *StoreError {
	return &StoreError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *StoreError) WithDetails(details map[string]interface{}) *StoreError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// IsNonTransientWrite reports whether a failed write must abort a bulk insert.
// Only index type mismatches and uniqueness violations qualify; every other
// failure, typed or not, is transient and compensated with a fresh key.
func IsNonTransientWrite(err error) bool {
	switch GetCode(err) {
	case CodeUniqueAttribute, CodeInvalidIndexType:
		return true
	default:
		return false
	}
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a StoreError.
func GetCategory(err error) ErrorCategory {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a StoreError.
func GetCode(err error) string {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

func isRetryable(code string) bool {
	switch code {
	case CodeTimeout, CodeOverloaded, CodeUnavailable:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewValidationError(code, message string, cause error) *StoreError {
	return Wrap(ErrCategoryValidation, code, message, cause)
}

func NewBucketError(code, message string, cause error) *StoreError {
	return Wrap(ErrCategoryBucket, code, message, cause)
}

func NewWriteError(code, message string, cause error) *StoreError {
	return Wrap(ErrCategoryWrite, code, message, cause)
}

func NewReindexError(code, message string, cause error) *StoreError {
	return Wrap(ErrCategoryReindex, code, message, cause)
}

func NewTransportError(code, message string, cause error) *StoreError {
	return Wrap(ErrCategoryTransport, code, message, cause)
}

func NewInternalError(message string, cause error) *StoreError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
