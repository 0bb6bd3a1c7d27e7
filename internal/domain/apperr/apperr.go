// Package apperr classifies domain errors into the kinds the transport layer
// reports: validation, not-found and conflict. Anything else is internal.
package apperr

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Kind sentinels. Domain errors match them with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)

// Error is a domain error tagged with a kind.
type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Is reports whether target is the kind of e.
func (e *Error) Is(target error) bool { return target == e.kind }

// Validation returns an error of the validation kind.
func Validation(msg string) *Error { return &Error{kind: ErrValidation, msg: msg} }

// NotFound returns an error of the not-found kind.
func NotFound(msg string) *Error { return &Error{kind: ErrNotFound, msg: msg} }

// Conflict returns an error of the conflict kind.
func Conflict(msg string) *Error { return &Error{kind: ErrConflict, msg: msg} }

// FieldError reports a single invalid or missing input field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is makes every FieldError a validation error.
func (e *FieldError) Is(target error) bool { return target == ErrValidation }

// Required returns a FieldError for a missing field.
func Required(field string) *FieldError {
	return &FieldError{Field: field, Reason: "is required"}
}

// Invalid returns a FieldError with a custom reason.
func Invalid(field, reason string) *FieldError {
	return &FieldError{Field: field, Reason: reason}
}
