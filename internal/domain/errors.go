package domain

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures returned to a waiting caller.
type ErrorCode string

const (
	CodeValidation  ErrorCode = "VALIDATION"
	CodeNotFound    ErrorCode = "NOT_FOUND"
	CodeConflict    ErrorCode = "CONFLICT"
	CodeRateLimited ErrorCode = "RATE_LIMITED"
	CodeTransient   ErrorCode = "TRANSIENT"
)

// Error is the relay's error taxonomy. Cause is kept for logs and never sent to clients.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on code so callers can write errors.Is(err, domain.ErrNotFound).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Message == ""
}

// Sentinels for errors.Is checks by category.
var (
	ErrValidation  = &Error{Code: CodeValidation}
	ErrNotFound    = &Error{Code: CodeNotFound}
	ErrConflict    = &Error{Code: CodeConflict}
	ErrRateLimited = &Error{Code: CodeRateLimited}
	ErrTransient   = &Error{Code: CodeTransient}
)

func Validation(format string, args ...any) error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) error {
	return &Error{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

func RateLimited(format string, args ...any) error {
	return &Error{Code: CodeRateLimited, Message: fmt.Sprintf(format, args...)}
}

// Transient wraps an infrastructure failure (database, presence store, broker).
func Transient(op string, cause error) error {
	return &Error{Code: CodeTransient, Message: op, Cause: cause}
}

// CodeOf returns the taxonomy code of err, or CodeTransient for foreign errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeTransient
}

// PublicMessage is the text safe to send back to a client.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Code == CodeTransient {
			return "temporarily unavailable: " + e.Message
		}
		return e.Message
	}
	return "internal error"
}
