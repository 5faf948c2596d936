package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by mutations that reference a missing row.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a row lock could not be taken in time.
	// The caller may retry once.
	ErrConflict = errors.New("concurrent update conflict")
)

// ValidationError rejects malformed input before anything is written.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// AuthorizationError rejects an operation the caller may not perform
// (editing someone else's message, editing after the window closed).
type AuthorizationError struct {
	Reason string
}

func NewAuthorizationError(reason string) *AuthorizationError {
	return &AuthorizationError{Reason: reason}
}

func (e *AuthorizationError) Error() string {
	return "not authorized: " + e.Reason
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsAuthorization(err error) bool {
	var a *AuthorizationError
	return errors.As(err, &a)
}
