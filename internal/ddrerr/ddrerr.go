// Package ddrerr defines the error-kind taxonomy the orchestrator
// distinguishes (spec section 7) and a carrier type satisfying the
// standard error interface, composable with fmt.Errorf %w wrapping.
package ddrerr

import (
	"errors"
	"fmt"
)

// Kind is one of the distinguished error kinds.
type Kind string

const (
	ServiceUnavailable Kind = "service_unavailable"
	InvalidLLMResponse Kind = "invalid_llm_response"
	PreferenceMismatch Kind = "preference_mismatch"
	InvalidState       Kind = "invalid_state"
	SessionNotFound    Kind = "session_not_found"
	PhaseTimeout       Kind = "phase_timeout"
	InternalError      Kind = "internal_error"
)

// Error carries a Kind, a human message, and (for ERROR-terminal sessions)
// the step index at which the failure occurred.
type Error struct {
	Kind      Kind
	Message   string
	StepIndex int
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with no step index and no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, StepIndex: -1}
}

// Wrap builds an Error wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, StepIndex: -1, Cause: cause}
}

// AtStep attaches a step index, returning the same *Error for chaining.
func (e *Error) AtStep(idx int) *Error {
	e.StepIndex = idx
	return e
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error; otherwise returns InternalError.
func KindOf(err error) Kind {
	var de *Error
	if As(err, &de) {
		return de.Kind
	}
	return InternalError
}

// As is a thin re-export point so callers of this package don't need a
// second import of errors purely for this taxonomy.
func As(err error, target **Error) bool {
	return errors.As(err, target)
}
