// Package oerr defines the stable error categories shared between the
// coordinator, the job store and the HTTP layer.
package oerr

import "fmt"

// Code represents a stable error category that callers can switch on.
type Code string

const (
	CodeUnknown Code = "unknown"

	// Validation/lookup: malformed or stale client input.
	CodeUnknownWorkflow          Code = "unknown_workflow"
	CodeMissingParameter         Code = "missing_parameter"
	CodeInvalidParameter         Code = "invalid_parameter"
	CodeUnsupportedParameterType Code = "unsupported_parameter_type"

	// Protocol mismatch: a callback carried a value this service does
	// not recognize. Fatal, never retried.
	CodeUnknownLifecycleStatus Code = "unknown_lifecycle_status"
	CodeUnknownResultType      Code = "unknown_result_type"

	// Store-level conflicts.
	CodeDuplicateJob Code = "duplicate_job"
)

// Error is a simple value type that carries a Code plus the underlying error.
type Error struct {
	Code Code
	err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// New wraps an error with the provided code. If err is nil a nil is returned.
func New(code Code, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, err: err}
}

// Newf builds a coded error from a format string.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, err: fmt.Errorf(format, args...)}
}

// IsCode helps callers compare codes without type assertions.
func IsCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*Error); ok {
		return e.Code == code
	}
	return false
}

// CodeOf extracts the code from an error, CodeUnknown when it carries none.
func CodeOf(err error) Code {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return CodeUnknown
}
