// Package errors provides the domain error taxonomy for habit-tks.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Every domain failure wraps exactly one of these.
var (
	ErrNotFound         = errors.New("not found")
	ErrAccessDenied     = errors.New("access denied")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrValidation       = errors.New("validation failed")
)

// DomainError is a failure raised by a service operation.
type DomainError struct {
	Op      string // e.g. "habit.skip"
	Kind    error  // one of the sentinels above
	Message string
}

func (e *DomainError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Message)
}

func (e *DomainError) Unwrap() error { return e.Kind }

func newf(op string, kind error, format string, args ...any) *DomainError {
	return &DomainError{Op: op, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotFound returns an ErrNotFound domain error.
func NotFound(op, format string, args ...any) error {
	return newf(op, ErrNotFound, format, args...)
}

// AccessDenied returns an ErrAccessDenied domain error.
func AccessDenied(op, format string, args ...any) error {
	return newf(op, ErrAccessDenied, format, args...)
}

// InvalidOperation returns an ErrInvalidOperation domain error.
func InvalidOperation(op, format string, args ...any) error {
	return newf(op, ErrInvalidOperation, format, args...)
}

// Validation returns an ErrValidation domain error.
func Validation(op, format string, args ...any) error {
	return newf(op, ErrValidation, format, args...)
}

// KindOf returns the sentinel kind of err, or nil for non-domain errors.
func KindOf(err error) error {
	for _, kind := range []error{ErrNotFound, ErrAccessDenied, ErrInvalidOperation, ErrValidation} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// Message returns the human-readable part of a domain error.
func Message(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}
