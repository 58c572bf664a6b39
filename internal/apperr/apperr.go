// Package apperr defines the error taxonomy shared by every service
// layer: a rejected operation is always one of these kinds, never a
// raw transport failure.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindBusiness   Kind = "business_logic"
	KindNotFound   Kind = "not_found"
	KindExpired    Kind = "expired"
	KindConflict   Kind = "conflict"
	KindInternal   Kind = "internal"
)

// FieldViolation is one per-field validation failure. Responses carry
// the full list so a client can correct every problem in one round trip.
type FieldViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

type Error struct {
	Kind     Kind
	Title    string
	Fields   []FieldViolation
	Recovery string
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Title, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Title)
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(title string, fields ...FieldViolation) *Error {
	return &Error{Kind: KindValidation, Title: title, Fields: fields}
}

func Business(title string) *Error {
	return &Error{Kind: KindBusiness, Title: title}
}

func NotFound(title string) *Error {
	return &Error{Kind: KindNotFound, Title: title}
}

// Expired marks an entity whose lifetime elapsed. It is distinct from
// not-found because a recovery action is offered to the client.
func Expired(title, recovery string) *Error {
	return &Error{Kind: KindExpired, Title: title, Recovery: recovery}
}

func Conflict(title string) *Error {
	return &Error{Kind: KindConflict, Title: title}
}

func Internal(title string, err error) *Error {
	return &Error{Kind: KindInternal, Title: title, Err: err}
}

// KindOf reports the taxonomy kind of err. Anything that is not an
// *Error is an unexpected internal fault.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As unwraps err into an *Error, or wraps it as internal when it is
// not one.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal("internal error", err)
}
