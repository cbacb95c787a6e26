// Package focuserr defines the typed error taxonomy shared by every layer of
// the focus: stanza handlers, the HTTP surface, and the internal orchestrator
// all produce and consume *Error rather than ad-hoc error strings.
package focuserr

import (
	"errors"
	"fmt"
)

// Kind is one entry from the closed error taxonomy. New kinds are not added
// casually: every kind must have a defined stanza and HTTP mapping.
type Kind string

const (
	NotAuthorized      Kind = "not-authorized"
	Forbidden          Kind = "forbidden"
	NotAcceptable      Kind = "not-acceptable"
	BadRequest         Kind = "bad-request"
	ItemNotFound       Kind = "item-not-found"
	ServiceUnavailable Kind = "service-unavailable"
	ResourceConstraint Kind = "resource-constraint"
	Conflict           Kind = "conflict"
	InternalServer     Kind = "internal-server-error"
	Timeout            Kind = "timeout"
	SessionInvalid     Kind = "session-invalid"
	Cancelled          Kind = "cancelled"
)

// Error is the single error type produced by the focus. Tag carries a short
// machine-readable discriminator for kinds that need one (e.g. "group-arity"
// for a BadRequest produced by source validation).
type Error struct {
	Kind    Kind
	Tag     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Tag != "" {
		return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Tag, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Tagged(kind Kind, tag, message string) *Error {
	return &Error{Kind: kind, Tag: tag, Message: message}
}

func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// As extracts a *Error from err, mirroring errors.As for callers that only
// need the taxonomy and not a typed target variable.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or InternalServer if err does not carry one.
// Handlers use this to decide the wire mapping without a type switch.
func KindOf(err error) Kind {
	if fe, ok := As(err); ok {
		return fe.Kind
	}
	return InternalServer
}

// ReservationError is the extension carried by reservation-gate rejections
// (EXTERNAL INTERFACES, Reservation REST); it wraps the upstream HTTP-style
// code rather than mapping it onto the core taxonomy.
type ReservationError struct {
	HTTPCode int
	Message  string
}

func (e *ReservationError) Error() string {
	return fmt.Sprintf("reservation-error[%d]: %s", e.HTTPCode, e.Message)
}
