// Package domainerrors carries coded errors across service boundaries.
//
// Stores and infrastructure return plain errors or sentinel facts
// (pkg/platform/sentinel); services translate those into a coded Error so
// transports (HTTP, event handlers) can map them without string matching.
package domainerrors

import (
	"errors"
)

// Code classifies a domain error.
type Code string

const (
	// CodeInvalidInput rejects a request before any store access (empty
	// attribute list, missing scope, unparseable identifier).
	CodeInvalidInput Code = "invalid_input"
	// CodeValidation reports a validation failure meant for end users.
	CodeValidation Code = "validation_error"
	CodeBadRequest Code = "bad_request"
	// CodeNotFound reports an entity that vanished or never existed.
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeTimeout      Code = "timeout"
	// CodeInternal wraps store and infrastructure failures. The cause is kept.
	CodeInternal Code = "internal_error"
	// CodeMalformedDecision reports a completed task whose payload does not
	// carry a usable merge decision.
	CodeMalformedDecision Code = "malformed_decision"
	// CodeInvariantViolation reports a domain invariant broken by a constructor
	// or state transition.
	CodeInvariantViolation Code = "invariant_violation"
)

// Error is a coded domain error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to err. A nil err yields nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether any coded error in err's chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Is reports whether the outermost coded error in err's chain carries code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// CodeOf returns the outermost code in err's chain, or CodeInternal for
// uncoded errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the outermost coded message, falling back to err.Error().
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
