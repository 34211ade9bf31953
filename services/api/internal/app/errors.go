package app

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	// ErrAlreadySubmitted indicates a second quiz attempt for the same
	// quiz type.
	ErrAlreadySubmitted = errors.New("already submitted")
	ErrValidation       = errors.New("validation failed")
)
