package decision

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies engine failures by how they must be handled
type ErrorCategory string

const (
	// Recoverable by upstream correction, never fatal to the engine
	ErrorCategoryValidation ErrorCategory = "VALIDATION"

	// Risk limit rejections; not retried automatically
	ErrorCategoryRiskLimit ErrorCategory = "RISK_LIMIT"

	// Decay gate rejections
	ErrorCategoryStaleness ErrorCategory = "STALENESS"

	// Ledger unavailable, account fetch timeout, sink unreachable; the
	// decision is not committed and redelivery retries it
	ErrorCategoryInfrastructure ErrorCategory = "INFRASTRUCTURE"

	// Ledger bug (e.g. duplicate commit); must halt the code path and alert
	ErrorCategoryInvariant ErrorCategory = "INVARIANT"
)

// Sentinel errors surfaced by the ledger
var (
	// ErrDuplicateCommit indicates a second commit for an already-committed
	// signal_id. This is a programming error, never silently overwritten.
	ErrDuplicateCommit = errors.New("duplicate commit for committed signal")

	// ErrReservationPending indicates the signal_id is reserved by an
	// in-flight decision; the caller should treat the delivery as transient
	// and let redelivery retry.
	ErrReservationPending = errors.New("decision for signal is still in flight")
)

// EngineError is a categorized error with component context
type EngineError struct {
	Category   ErrorCategory
	Component  string
	Operation  string
	Message    string
	Underlying error
}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Category, e.Component, e.Operation, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Category, e.Component, e.Operation, e.Message)
}

// Unwrap returns the underlying error for error unwrapping
func (e *EngineError) Unwrap() error {
	return e.Underlying
}

// Retryable reports whether redelivery of the same signal may succeed.
// Only infrastructure failures qualify: the reservation is rolled back and the
// at-least-once source redelivers.
func (e *EngineError) Retryable() bool {
	return e.Category == ErrorCategoryInfrastructure
}

// Fatal reports whether the error indicates a bug that must halt the code
// path and alert rather than continue.
func (e *EngineError) Fatal() bool {
	return e.Category == ErrorCategoryInvariant
}

// NewEngineError creates a categorized engine error
func NewEngineError(category ErrorCategory, component, operation, message string) *EngineError {
	return &EngineError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
	}
}

// WrapError wraps an existing error with engine error context
func WrapError(err error, category ErrorCategory, component, operation string) *EngineError {
	if err == nil {
		return nil
	}
	return &EngineError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    "operation failed",
		Underlying: err,
	}
}

// NewInfrastructureError wraps a transport or storage failure
func NewInfrastructureError(component, operation string, err error) *EngineError {
	return WrapError(err, ErrorCategoryInfrastructure, component, operation)
}

// NewInvariantError marks a broken internal invariant
func NewInvariantError(component, operation string, err error) *EngineError {
	return WrapError(err, ErrorCategoryInvariant, component, operation)
}

// NewValidationError marks an invalid signal field
func NewValidationError(component, operation, message string) *EngineError {
	return NewEngineError(ErrorCategoryValidation, component, operation, message)
}

// IsInvariantViolation reports whether err carries an invariant category or
// the duplicate-commit sentinel.
func IsInvariantViolation(err error) bool {
	if errors.Is(err, ErrDuplicateCommit) {
		return true
	}
	var ee *EngineError
	return errors.As(err, &ee) && ee.Category == ErrorCategoryInvariant
}
