package domain

import (
	"errors"
	"strconv"
	"time"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeInvalidTransition      Code = "INVALID_TRANSITION"
	CodeInsufficientCredits    Code = "INSUFFICIENT_CREDITS"
	CodeOutOfCheckInWindow     Code = "OUT_OF_CHECK_IN_WINDOW"
	CodeNotParticipant         Code = "NOT_PARTICIPANT"
	CodeConcurrentModification Code = "CONCURRENT_MODIFICATION"
	CodeEscrowInconsistency    Code = "ESCROW_INCONSISTENCY"
	CodeInvalidSessionTerms    Code = "INVALID_SESSION_TERMS"
	CodeInvalidInput           Code = "INVALID_INPUT"
	CodeNotFound               Code = "NOT_FOUND"
	CodeForbidden              Code = "FORBIDDEN"
)

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Internal message (for logs)
	Metadata map[string]string // Additional context for rendering
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil && e.Message == "" {
		return e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is comparisons. Only the code is compared.
var (
	ErrInvalidTransition      = &Error{Code: CodeInvalidTransition, Message: "invalid status transition"}
	ErrInsufficientCredits    = &Error{Code: CodeInsufficientCredits, Message: "insufficient credits"}
	ErrOutOfCheckInWindow     = &Error{Code: CodeOutOfCheckInWindow, Message: "outside check-in window"}
	ErrNotParticipant         = &Error{Code: CodeNotParticipant, Message: "actor is not a session participant"}
	ErrConcurrentModification = &Error{Code: CodeConcurrentModification, Message: "concurrent modification"}
	ErrEscrowInconsistency    = &Error{Code: CodeEscrowInconsistency, Message: "escrow inconsistency"}
	ErrInvalidSessionTerms    = &Error{Code: CodeInvalidSessionTerms, Message: "invalid session terms"}
	ErrInvalidInput           = &Error{Code: CodeInvalidInput, Message: "invalid input"}
	ErrNotFound               = &Error{Code: CodeNotFound, Message: "not found"}
	ErrForbidden              = &Error{Code: CodeForbidden, Message: "forbidden"}
)

// NewError creates a simple domain error with a code and message.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithMetadata creates a domain error with metadata.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf returns the code of the first domain error in the chain, if any.
func CodeOf(err error) (Code, bool) {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Code, true
	}
	return "", false
}

// InvalidTransition reports that op is not allowed while the session is in from.
func InvalidTransition(op string, from SessionStatus) *Error {
	return WithMetadata(CodeInvalidTransition, op+" is not allowed while session is "+string(from), map[string]string{
		"operation": op,
		"status":    string(from),
	})
}

// OutOfCheckInWindow reports a rejected check-in. untilOpen is zero when the
// window has already closed.
func OutOfCheckInWindow(untilOpen time.Duration, closed bool) *Error {
	seconds := int64(untilOpen / time.Second)
	if seconds < 0 {
		seconds = 0
	}
	message := "check-in window opens in " + strconv.FormatInt(seconds, 10) + "s"
	if closed {
		message = "check-in window has closed"
	}
	return WithMetadata(CodeOutOfCheckInWindow, message, map[string]string{
		"seconds_until_open": strconv.FormatInt(seconds, 10),
		"window_closed":      strconv.FormatBool(closed),
	})
}

// SecondsUntilWindowOpens extracts the wait carried by an OutOfCheckInWindow error.
func SecondsUntilWindowOpens(err error) (int64, bool) {
	var derr *Error
	if !errors.As(err, &derr) || derr.Code != CodeOutOfCheckInWindow {
		return 0, false
	}
	seconds, parseErr := strconv.ParseInt(derr.Metadata["seconds_until_open"], 10, 64)
	if parseErr != nil {
		return 0, false
	}
	return seconds, true
}
