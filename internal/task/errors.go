package task

import (
	"errors"
	"fmt"
)

// ErrNotFound signals a task or child id that no longer exists. The
// operation has not touched any state.
var ErrNotFound = errors.New("not found")

// ErrInvalidTransition signals a status change the lifecycle forbids,
// e.g. approving a task that is not waiting for approval.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrClarificationPending signals an approval attempted while the
// parent's last message is still unanswered.
var ErrClarificationPending = errors.New("clarification pending")

// ValidationError reports bad user input. It is always raised before
// any state mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
