/*
errors.go - Centralized error types for the contract engine

PURPOSE:
  All engine error kinds in one place. There are exactly two: malformed
  input (ValidationError) and illegal lifecycle moves
  (StateTransitionError). The engine has no I/O, so nothing is ever
  retried internally; every error is terminal per call and surfaced to
  the invoking collaborator unchanged.

USAGE:
  if errors.Is(err, contract.ErrValidation) { ... 400 }
  if errors.Is(err, contract.ErrIllegalTransition) { ... 409 }
*/
package contract

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is wrapped by every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrIllegalTransition is wrapped by every *StateTransitionError.
	ErrIllegalTransition = errors.New("illegal status transition")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports malformed input, naming the offending field.
// Input is never silently corrected.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func validationErr(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// StateTransitionError reports an attempted transition that the state
// machine forbids, with both the current and the attempted state.
type StateTransitionError struct {
	From      Status
	Attempted Status
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("illegal status transition: %s -> %s", e.From, e.Attempted)
}

func (e *StateTransitionError) Unwrap() error { return ErrIllegalTransition }

// IsClientError reports whether the error is due to invalid caller
// input rather than an engine fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrIllegalTransition)
}
