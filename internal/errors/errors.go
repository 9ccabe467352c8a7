// Package errors defines the error taxonomy shared across dupesmith's
// components: a single typed Error carrying a stable Code, a human message,
// and optional structured Details, satisfying the standard error interface
// so call sites can keep using fmt.Errorf("...: %w", err) and errors.Is/As.
package errors

import (
	"errors"
	"fmt"
)

// Code identifies the class of failure. Codes are part of the tool
// protocol's error shape (spec §7) and must not be renamed casually.
type Code string

const (
	// InvalidInput means the input failed validation before any side
	// effect occurred.
	InvalidInput Code = "InvalidInput"

	// ToolNotInstalled means the external structural matcher binary could
	// not be resolved.
	ToolNotInstalled Code = "ToolNotInstalled"

	// ExecutionError means a subprocess exited nonzero or was killed by a
	// signal.
	ExecutionError Code = "ExecutionError"

	// Timeout means an operation exceeded its deadline and the underlying
	// child process was terminated.
	Timeout Code = "Timeout"

	// MalformedOutput means a line of matcher output could not be parsed;
	// callers should log and skip, not fail the whole operation.
	MalformedOutput Code = "MalformedOutput"

	// IntegrityFailure means a backup restore found a hash mismatch; the
	// working tree is guaranteed untouched.
	IntegrityFailure Code = "IntegrityFailure"

	// ValidationFailure means a post-apply syntax check failed and a
	// rollback was performed.
	ValidationFailure Code = "ValidationFailure"

	// Cancelled means the caller aborted an in-progress operation.
	Cancelled Code = "Cancelled"
)

// Error is the concrete error type returned across component boundaries.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap lets errors.Is/As reach a wrapped cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is makes errors.Is(err, InvalidInput) work by comparing codes via a
// sentinel *Error with nothing but a Code set.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	if t.Message == "" && t.cause == nil && len(t.Details) == 0 {
		return e.Code == t.Code
	}
	return e.Code == t.Code && e.Message == t.Message
}

// New builds an *Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds an *Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches code and message to an existing error, preserving it as the
// cause for errors.Unwrap/errors.Is chains.
func Wrap(code Code, cause error, message string) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// WithDetails returns a copy of e with Details set, for attaching structured
// diagnostics (e.g. stderr tails, per-file validation failures) without
// losing the original code/message/cause.
func (e *Error) WithDetails(details map[string]any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// sentinel returns a bare *Error carrying only a code, usable with
// errors.Is(err, errors.InvalidInput) style checks via Code helpers below.
func sentinel(code Code) *Error {
	return &Error{Code: code}
}

// Is-style sentinels for errors.Is(err, errors.ErrInvalidInput) etc.
var (
	ErrInvalidInput      = sentinel(InvalidInput)
	ErrToolNotInstalled  = sentinel(ToolNotInstalled)
	ErrExecutionError    = sentinel(ExecutionError)
	ErrTimeout           = sentinel(Timeout)
	ErrMalformedOutput   = sentinel(MalformedOutput)
	ErrIntegrityFailure  = sentinel(IntegrityFailure)
	ErrValidationFailure = sentinel(ValidationFailure)
	ErrCancelled         = sentinel(Cancelled)
)

// CodeOf extracts the Code from err if it is (or wraps) an *Error, and ok
// reports whether one was found.
func CodeOf(err error) (code Code, ok bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}
