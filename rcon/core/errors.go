package core

import (
	"errors"
	"fmt"
)

// ErrorCode classifies every failure surfaced by the connection
type ErrorCode int

const (
	// Unknown is used for transport failures and protocol violations
	// that have no dedicated code
	Unknown ErrorCode = iota

	// Send was invoked while the connection was not authenticated
	NotReady

	// The request was pending when the connection closed
	Closed

	// A response frame arrived with no request waiting for it
	Unrequested

	// The server rejected the login hash
	AuthenticationFailed

	// Server reported the session is not authenticated
	NotAuthenticated

	// Server refused a restricted command
	CommandRestricted

	// Server failed to process the command
	CommandFailed

	// The authenticated user may not use the command
	CommandUnauthorized

	// Server does not know the command
	CommandUnknown
)

var codeNames = map[ErrorCode]string{
	Unknown:              "UNKNOWN",
	NotReady:             "NOT_READY",
	Closed:               "CLOSED",
	Unrequested:          "UNREQUESTED",
	AuthenticationFailed: "AUTHENTICATION_FAILED",
	NotAuthenticated:     "NOT_AUTHENTICATED",
	CommandRestricted:    "COMMAND_RESTRICTED",
	CommandFailed:        "COMMAND_FAILED",
	CommandUnauthorized:  "COMMAND_UNAUTHORIZED",
	CommandUnknown:       "COMMAND_UNKNOWN",
}

func (c ErrorCode) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

// Recoverable reports whether the connection stays usable after an
// error with this code. Only server side command errors qualify.
func (c ErrorCode) Recoverable() bool {
	return c >= NotAuthenticated && c <= CommandUnknown
}

var (
	ErrUnknown              = &Error{Code: Unknown}
	ErrNotReady             = &Error{Code: NotReady}
	ErrClosed               = &Error{Code: Closed}
	ErrUnrequested          = &Error{Code: Unrequested}
	ErrAuthenticationFailed = &Error{Code: AuthenticationFailed}
	ErrNotAuthenticated     = &Error{Code: NotAuthenticated}
	ErrCommandRestricted    = &Error{Code: CommandRestricted}
	ErrCommandFailed        = &Error{Code: CommandFailed}
	ErrCommandUnauthorized  = &Error{Code: CommandUnauthorized}
	ErrCommandUnknown       = &Error{Code: CommandUnknown}
)

// Error is a classified RCON failure
type Error struct {
	// Identifier for the error code
	Code ErrorCode

	// Diagnostic text; the raw server response for command errors
	Message string

	// Underlying transport or protocol error, if any
	Cause error
}

func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	switch {
	case e.Message == "" && e.Cause == nil:
		return e.Code.String()
	case e.Cause == nil:
		return fmt.Sprintf("%v: %s", e.Code, e.Message)
	case e.Message == "":
		return fmt.Sprintf("%v: %v", e.Code, e.Cause)
	default:
		return fmt.Sprintf("%v: %s: %v", e.Code, e.Message, e.Cause)
	}
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error with the same code. A target carrying a
// message must also match on the message, so the bare sentinels
// (ErrClosed etc.) match any error of their code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != e.Code {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

// CodeOf returns the ErrorCode carried by err, or Unknown when err is
// not (and does not wrap) an *Error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Unknown
}
