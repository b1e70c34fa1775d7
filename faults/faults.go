// Package faults defines the failure taxonomy shared by the access engine,
// the query translator, the storage adapter, and the gateway. Each component
// returns a *faults.Error local to its contract; the gateway is the single
// place that maps a Kind to a transport status.
package faults

import (
	"errors"
	"fmt"
)

// Kind categorizes a failure.
type Kind string

const (
	KindPolicyNotFound   Kind = "policy_not_found"
	KindForbidden        Kind = "forbidden"
	KindInvalidQuery     Kind = "invalid_query"
	KindValidation       Kind = "validation_error"
	KindNotFound         Kind = "not_found"
	KindTimeout          Kind = "timeout"
	KindStorageFailure   Kind = "storage_failure"
	KindMethodNotAllowed Kind = "method_not_allowed"
)

// Error is a failure with a Kind and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap implements errors.Unwrap.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind so sentinel comparisons with errors.Is work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New creates a new Error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a new Error wrapping a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the Kind of err, or the empty Kind when err is not a *Error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool { return IsKind(err, KindNotFound) }

// IsForbidden reports whether err is a permission failure.
func IsForbidden(err error) bool { return IsKind(err, KindForbidden) }

// IsInvalidQuery reports whether err is a query translation failure.
func IsInvalidQuery(err error) bool { return IsKind(err, KindInvalidQuery) }

// IsTimeout reports whether err is an expired external call.
func IsTimeout(err error) bool { return IsKind(err, KindTimeout) }
