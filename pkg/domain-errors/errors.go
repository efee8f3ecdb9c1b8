// Package domainerrors defines coded errors shared by services and transports.
//
// Services return *Error values so transports can map them to status codes
// without inspecting messages. Stores should return sentinel errors instead and
// let the service translate them at the boundary.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error classification.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeInvariantViolation Code = "invariant_violation"
	CodeInvalidState       Code = "invalid_state"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeTimeout            Code = "timeout"
	CodeUnavailable        Code = "unavailable"
	CodeInternal           Code = "internal_error"
)

// Error is a coded domain error. Details carries the offending identifiers so
// analysts can see exactly which record caused a rejection.
type Error struct {
	Code    Code
	Message string
	Err     error
	Details map[string]string
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same code and message, so tests can use
// errors.Is against a freshly constructed value.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// New creates a coded error without a cause.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// WithDetail returns the error with an extra detail entry.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// GetCode returns the code of the outermost *Error in the chain.
func GetCode(err error) (Code, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Code, true
	}
	return "", false
}

// HasCode reports whether any *Error in the chain carries code.
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

// DetailsOf collects details from every *Error in the chain, outermost wins.
func DetailsOf(err error) map[string]string {
	var out map[string]string
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			break
		}
		for k, v := range de.Details {
			if out == nil {
				out = make(map[string]string)
			}
			if _, exists := out[k]; !exists {
				out[k] = v
			}
		}
		err = de.Err
	}
	return out
}

// Is reports whether err is a domain error with the given code.
// It mirrors errors.Is for call sites that only care about classification.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}
