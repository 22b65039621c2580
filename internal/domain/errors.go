package domain

import (
	"errors"
	"fmt"
)

// ErrValidation is the parent of every field-level validation failure.
var ErrValidation = errors.New("validation failed")

// ErrInvalidStateTransition reports a transition out of a terminal state.
var ErrInvalidStateTransition = errors.New("invalid state transition")

var (
	ErrInvalidID        = invalid("invalid id")
	ErrInvalidName      = invalid("invalid name")
	ErrInvalidTitle     = invalid("title is required")
	ErrInvalidPriority  = invalid("invalid priority")
	ErrInvalidStatus    = invalid("invalid status")
	ErrInvalidDueDate   = invalid("invalid due date")
	ErrInvalidEmail     = invalid("invalid email")
	ErrInvalidRole      = invalid("invalid role")
	ErrInvalidMessage   = invalid("message is required")
	ErrInvalidDecision  = invalid("invalid decision")
	ErrAssigneeRequired = invalid("assignee is required for project tasks")
	ErrPersonalTask     = invalid("personal tasks cannot carry assignment fields")
)

// invalid builds one sentinel that matches ErrValidation under errors.Is.
func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
