package storage

import (
	"errors"
	"fmt"
)

// Kind classifies store failures so callers can map each one to a distinct
// user-facing message.
type Kind string

const (
	// KindValidation marks bad or out-of-domain input.
	KindValidation Kind = "VALIDATION"
	// KindNotFound marks lookups of unknown identifiers.
	KindNotFound Kind = "NOT_FOUND"
	// KindIllegalTransition marks forbidden status changes.
	KindIllegalTransition Kind = "ILLEGAL_TRANSITION"
	// KindUnauthorized marks role or ownership check failures.
	KindUnauthorized Kind = "UNAUTHORIZED"
	// KindDuplicate marks uniqueness violations.
	KindDuplicate Kind = "DUPLICATE"
	// KindState marks unmet preconditions on a related entity.
	KindState Kind = "STATE"
)

// Error is the store's domain error. Every failed operation returns one so
// the dispatcher can translate the kind without string matching.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Code returns the machine-readable error code for structured logs.
func (e *Error) Code() string { return string(e.Kind) }

// NewError builds a store error of the given kind.
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapError attaches an underlying cause to a store error.
func WrapError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from err, or "" when err is not a store error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// IsKind reports whether err is a store error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
