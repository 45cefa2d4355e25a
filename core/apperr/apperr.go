// Package apperr defines the business error taxonomy shared by the booking,
// dispatch and notification components. Every error carries a stable,
// machine-readable Code next to its human message.
package apperr

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable error identifier.
type Code string

const (
	CodeNotFound              Code = "not_found"
	CodeInvalidTransition     Code = "invalid_transition"
	CodeConcurrencyConflict   Code = "concurrency_conflict"
	CodeAlreadyAssigned       Code = "already_assigned"
	CodeOfferExpired          Code = "offer_expired"
	CodeNotEligible           Code = "not_eligible"
	CodeNoEligibleTechnicians Code = "no_eligible_technicians"
	CodeInvalidRate           Code = "invalid_rate"
	CodeConfigMissing         Code = "config_missing"
	CodeForbidden             Code = "forbidden"
	CodeInvalidArgument       Code = "invalid_argument"
	CodeInternal              Code = "internal"
)

// Error is a business error.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same code. This lets the
// package sentinels be used with errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound              = &Error{Code: CodeNotFound}
	ErrInvalidTransition     = &Error{Code: CodeInvalidTransition}
	ErrConcurrencyConflict   = &Error{Code: CodeConcurrencyConflict}
	ErrAlreadyAssigned       = &Error{Code: CodeAlreadyAssigned}
	ErrOfferExpired          = &Error{Code: CodeOfferExpired}
	ErrNotEligible           = &Error{Code: CodeNotEligible}
	ErrNoEligibleTechnicians = &Error{Code: CodeNoEligibleTechnicians}
	ErrInvalidRate           = &Error{Code: CodeInvalidRate}
	ErrConfigMissing         = &Error{Code: CodeConfigMissing}
	ErrForbidden             = &Error{Code: CodeForbidden}
	ErrInvalidArgument       = &Error{Code: CodeInvalidArgument}
)

// New builds an Error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or
// CodeInternal when err carries none.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
