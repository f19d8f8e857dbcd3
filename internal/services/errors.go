package services

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by a service unwraps to one of these.
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrUpstream     = errors.New("upstream error")
)

// Error is a user-facing failure with a kind
type Error struct {
	kind    error
	message string
}

func newError(kind error, message string) *Error {
	return &Error{kind: kind, message: message}
}

func (e *Error) Error() string { return e.message }

func (e *Error) Unwrap() error { return e.kind }

var (
	ErrUsernameTaken       = newError(ErrConflict, "username already exists")
	ErrDomainAlreadyExists = newError(ErrConflict, "domain already registered")
	ErrDuplicateExtension  = newError(ErrConflict, "extension already exists")

	ErrAccountNotEligible = newError(ErrUnauthorized, "user not found or account suspended")
	ErrInvalidCredentials = newError(ErrUnauthorized, "invalid username or password")
	ErrAccountSuspended   = newError(ErrUnauthorized, "account suspended")
	ErrAdminRequired      = newError(ErrUnauthorized, "admin privileges required")

	ErrInvalidInput       = newError(ErrValidation, "missing or invalid fields")
	ErrInvalidExtension   = newError(ErrValidation, "extension must start with '.'")
	ErrInvalidNameservers = newError(ErrValidation, "between 1 and 4 nameservers are required")
	ErrInvalidSchedule    = newError(ErrValidation, "window times must be HH:MM")
	ErrInvalidStatus      = newError(ErrValidation, "unknown account status")
	ErrPasswordTooLong    = newError(ErrValidation, "password must be at most 72 bytes")
)

// upstream marks a store failure
func upstream(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUpstream, err)
}
