// Package apperr defines the error kinds shared by the storage, circulation
// and HTTP layers.
//
// Every domain failure is one of four kinds. Callers test the kind with
// errors.Is and the HTTP layer maps it to a status code:
//
//	ErrValidation -> 422
//	ErrNotFound   -> 404
//	ErrConflict   -> 409
//	ErrForbidden  -> 403
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
)

// Error is a domain error carrying its kind and, for validation failures,
// the offending field.
type Error struct {
	Kind    error
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Validation reports a missing or malformed input field.
func Validation(field, message string) error {
	return &Error{Kind: ErrValidation, Field: field, Message: message}
}

// NotFound reports an unknown id for the named resource.
func NotFound(resource string, id uint) error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf("%s %d not found", resource, id)}
}

// NotFoundf reports a missing row that is not addressed by a single id.
func NotFoundf(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports an operation that is not allowed in the current state.
func Conflict(format string, args ...any) error {
	return &Error{Kind: ErrConflict, Message: fmt.Sprintf(format, args...)}
}

// Forbidden reports an actor acting on something it does not own.
func Forbidden(format string, args ...any) error {
	return &Error{Kind: ErrForbidden, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind sentinel of err, or nil for unclassified errors.
func KindOf(err error) error {
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrForbidden} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// FieldOf returns the field name attached to a validation error.
func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}
