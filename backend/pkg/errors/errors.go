package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeParse represents malformed structured-model input
	ErrorTypeParse ErrorType = "parse"
	// ErrorTypeValidation represents a discarded triple or model element
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeStoreUnavailable represents transient graph store connectivity failures
	ErrorTypeStoreUnavailable ErrorType = "store_unavailable"
	// ErrorTypeStoreConstraint represents writes rejected by the graph store for structural reasons
	ErrorTypeStoreConstraint ErrorType = "store_constraint"
	// ErrorTypeLLM represents completion/embedding collaborator errors
	ErrorTypeLLM ErrorType = "llm"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// Kind returns the error category. Typed errors embedding *BaseError inherit it.
func (e *BaseError) Kind() ErrorType {
	return e.Type
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Parse Errors

// ErrParse is returned when a structured model document is not well-formed
// or uses an element schema the parser does not know.
type ErrParse struct {
	*BaseError
	Source string
	Reason string
}

func NewParseError(source, reason string, err error) *ErrParse {
	return &ErrParse{
		BaseError: NewBaseError(ErrorTypeParse, fmt.Sprintf("cannot parse %s: %s", source, reason), err),
		Source:    source,
		Reason:    reason,
	}
}

// Validation Errors

// ErrValidation describes one discarded triple or model element. These are
// collected and counted, never returned as the result of a batch operation.
type ErrValidation struct {
	*BaseError
	Item   string
	Reason string
}

func NewValidationError(item, reason string) *ErrValidation {
	return &ErrValidation{
		BaseError: NewBaseError(ErrorTypeValidation, fmt.Sprintf("skipped %s: %s", item, reason), nil),
		Item:      item,
		Reason:    reason,
	}
}

// Store Errors

// ErrStoreUnavailable is returned when the graph backend cannot be reached or times out
type ErrStoreUnavailable struct {
	*BaseError
	Operation string
}

func NewStoreUnavailable(operation string, err error) *ErrStoreUnavailable {
	return &ErrStoreUnavailable{
		BaseError: NewBaseError(ErrorTypeStoreUnavailable, fmt.Sprintf("graph store unavailable during %s", operation), err),
		Operation: operation,
	}
}

// ErrStoreClosed is returned by a store used after Close. It reports as
// store_unavailable to callers but is never retried.
type ErrStoreClosed struct {
	*BaseError
	Operation string
}

func NewStoreClosed(operation string) *ErrStoreClosed {
	return &ErrStoreClosed{
		BaseError: NewBaseError(ErrorTypeStoreUnavailable, fmt.Sprintf("graph store closed during %s", operation), nil),
		Operation: operation,
	}
}

// ErrStoreConstraint is returned when the graph backend rejects a write
type ErrStoreConstraint struct {
	*BaseError
	Operation string
	Reason    string
}

func NewStoreConstraint(operation, reason string, err error) *ErrStoreConstraint {
	return &ErrStoreConstraint{
		BaseError: NewBaseError(ErrorTypeStoreConstraint, fmt.Sprintf("graph store rejected %s: %s", operation, reason), err),
		Operation: operation,
		Reason:    reason,
	}
}

// LLM Errors

// ErrLLMFailed is returned when a completion or embedding request fails
type ErrLLMFailed struct {
	*BaseError
	Model    string
	Attempts int
}

func NewLLMFailed(model string, attempts int, err error) *ErrLLMFailed {
	return &ErrLLMFailed{
		BaseError: NewBaseError(ErrorTypeLLM, fmt.Sprintf("LLM request failed after %d attempts", attempts), err),
		Model:     model,
		Attempts:  attempts,
	}
}

// ErrLLMNoResponse is returned when the LLM returns no choices
var ErrLLMNoResponse = NewBaseError(ErrorTypeLLM, "no response from LLM", nil)

// Context Errors

// ErrContextCancelled is returned when context is cancelled
type ErrContextCancelled struct {
	*BaseError
	Operation string
}

func NewContextCancelled(operation string, err error) *ErrContextCancelled {
	return &ErrContextCancelled{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context cancelled: %s", operation), err),
		Operation: operation,
	}
}

// Config Errors

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Helper functions

type kinded interface {
	Kind() ErrorType
}

// IsErrorType checks if an error, or any error it wraps, is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		if k, ok := err.(kinded); ok && k.Kind() == errType {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsRetryable checks if an error is retryable. Only graph store
// connectivity failures are; everything else is fatal to the caller.
func IsRetryable(err error) bool {
	if IsErrorType(err, ErrorTypeContext) {
		return false
	}
	var unavailable *ErrStoreUnavailable
	return errors.As(err, &unavailable)
}
