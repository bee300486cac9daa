// Package apperrors implements the server's error taxonomy: validation
// errors from the engine, policy errors from the lobby, and fatal
// state-inconsistency errors that end a match. Modeled on the teacher's
// typed AppError, trimmed to the categories this server actually raises.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for routing and severity purposes.
type Kind string

const (
	// KindValidation covers illegal plays: wrong phase, missing metric,
	// card not in hand. Surfaced only to the offending player.
	KindValidation Kind = "validation_error"
	// KindPolicy covers lobby rejections: already queued, already in a
	// match. Surfaced only to the caller.
	KindPolicy Kind = "policy_error"
	// KindStateInconsistency covers fatal internal errors: the match
	// cannot continue and ends with the non-offending player winning.
	KindStateInconsistency Kind = "state_inconsistency"
)

// AppError is the server's single error type, carrying enough context to
// decide who sees it and what happens to the match.
type AppError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// New constructs an AppError of the given kind.
func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// Newf constructs an AppError with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *AppError {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error as an AppError of the given kind.
func Wrap(kind Kind, err error, message string) *AppError {
	return &AppError{Kind: kind, Message: message, Cause: err}
}

// Validation is shorthand for an engine validation failure.
func Validation(format string, args ...interface{}) *AppError {
	return Newf(KindValidation, format, args...)
}

// Policy is shorthand for a lobby policy rejection.
func Policy(format string, args ...interface{}) *AppError {
	return Newf(KindPolicy, format, args...)
}

// StateInconsistency is shorthand for a fatal internal error.
func StateInconsistency(format string, args ...interface{}) *AppError {
	return Newf(KindStateInconsistency, format, args...)
}

// Is reports whether err is an AppError of the given kind.
func Is(err error, kind Kind) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}
