package app

import (
	"errors"
	"fmt"

	"github.com/evanschultz/taskdeck/internal/domain"
)

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicate         = errors.New("already exists")
	ErrInvalidCredential = errors.New("invalid credentials")
	ErrActionExpired     = fmt.Errorf("%w: pending action expired", domain.ErrValidation)
	ErrInvalidAction     = fmt.Errorf("%w: invalid pending action", domain.ErrValidation)
	ErrAlreadyMember     = fmt.Errorf("%w: requester is already a member", domain.ErrValidation)
	ErrRequestPending    = fmt.Errorf("%w: a join request is already pending", domain.ErrValidation)
	ErrUnknownAssignee   = fmt.Errorf("%w: assignee is not a project member", domain.ErrValidation)
	ErrInvalidTab        = fmt.Errorf("%w: invalid task tab", domain.ErrValidation)
)
