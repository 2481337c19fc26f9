// Package errors provides centralized error definitions and error handling utilities
// for sipchat. It defines sentinel errors for the coordination layer, domain error
// types carrying session or engine context, and classification helpers.
//
// # Error Types
//
// Domain-specific errors:
//   - UserCommandError: a command typed by the user could not be carried out.
//     Always recovered by the input loop and printed, never propagated further.
//   - SessionError: an operation on a specific session failed (for example the
//     transport closed while a chat message was being sent).
//   - EngineError: the session engine failed in a way the process cannot recover
//     from (engine did not start, listener died).
//
// # Usage
//
//	err := errors.NewUserCommandError("Please provide uri", nil)
//
//	if errors.Is(err, errors.ErrNoActiveSession) { ... }
//
//	var engineErr *errors.EngineError
//	if errors.As(err, &engineErr) { ... }
//
//	if errors.IsUserFacing(err) { console.Println(err) }
//
// A negotiation race that loses to an asynchronous state change is not an error;
// see the negotiation package's Superseded outcome.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that abort the process.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Coordination sentinel errors. Each of these is reported to the user and
// recovered locally.
var (
	// ErrNoActiveSession indicates a command needed a current session and there is none.
	ErrNoActiveSession = New("no active session")
	// ErrNoOtherSession indicates a switch was requested with fewer than two sessions.
	ErrNoOtherSession = New("there's no other session to switch to")
	// ErrAmbiguousOrUnknown indicates a command or stream token matched zero or
	// several candidates.
	ErrAmbiguousOrUnknown = New("ambiguous or unknown token")
	// ErrInvalidArgumentCount indicates a command received too few or too many arguments.
	ErrInvalidArgumentCount = New("invalid number of arguments")
	// ErrInvalidDigit indicates a DTMF digit outside 0-9, *, #, A-D.
	ErrInvalidDigit = New("invalid DTMF digit")
)

// Engine and transport sentinel errors.
var (
	// ErrConnectionClosed indicates the session transport closed during a send.
	ErrConnectionClosed = New("connection closed")
	// ErrUnknownSession indicates the engine has no session with the given id.
	ErrUnknownSession = New("unknown session")
	// ErrEngineFatal indicates the engine cannot continue.
	ErrEngineFatal = New("engine failure")
	// ErrNotSupported indicates the engine does not implement an optional operation.
	ErrNotSupported = New("operation not supported")
)

// General sentinel errors
var (
	// ErrBridgeClosed indicates the event bridge was torn down.
	ErrBridgeClosed = New("event bridge closed")
	// ErrConsoleClosed indicates the interactive console is no longer running.
	ErrConsoleClosed = New("console closed")
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// DomainError is the base interface for all sipchat errors.
type DomainError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsUserFacing returns true if the error message is safe to display
	// on the console as-is.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// UserCommandError is returned by command handlers when the user's request
// cannot be carried out. The message is printed verbatim, so it is written for
// the person at the console.
//
// Example:
//
//	err := errors.NewUserCommandError("Cannot send message", errors.ErrNoActiveSession)
//	fmt.Println(err) // "Cannot send message: no active session"
type UserCommandError struct {
	baseError
	Usage    string
	sentinel error
}

// NewUserCommandError creates a new UserCommandError.
func NewUserCommandError(message string, cause error) *UserCommandError {
	return &UserCommandError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// UserErrorf creates a UserCommandError with a formatted message and no cause.
func UserErrorf(format string, args ...any) *UserCommandError {
	return NewUserCommandError(fmt.Sprintf(format, args...), nil)
}

// WithUsage attaches the usage line of the command that failed. It is
// printed on its own line after the message.
func (e *UserCommandError) WithUsage(usage string) *UserCommandError {
	e.Usage = usage
	return e
}

// WithSentinel makes errors.Is match sentinel without adding it to the
// printed message.
func (e *UserCommandError) WithSentinel(sentinel error) *UserCommandError {
	e.sentinel = sentinel
	return e
}

// Is reports whether target is the sentinel attached with WithSentinel.
func (e *UserCommandError) Is(target error) bool {
	return e.sentinel != nil && target == e.sentinel
}

// Error returns the formatted error message.
func (e *UserCommandError) Error() string {
	msg := e.baseError.Error()
	if e.Usage != "" {
		return msg + "\n" + e.Usage
	}
	return msg
}

// SessionError represents a failure tied to one session.
//
// Example:
//
//	err := errors.NewSessionError("send message failed", errors.ErrConnectionClosed).
//	    WithSessionID("3f2a")
//	fmt.Println(err) // "session error [session=3f2a]: send message failed: connection closed"
type SessionError struct {
	baseError
	SessionID string
}

// NewSessionError creates a new SessionError.
func NewSessionError(message string, cause error) *SessionError {
	return &SessionError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithSessionID adds a session ID to the error context.
func (e *SessionError) WithSessionID(id string) *SessionError {
	e.SessionID = id
	return e
}

// Error returns the formatted error message.
func (e *SessionError) Error() string {
	prefix := "session error"
	if e.SessionID != "" {
		prefix = fmt.Sprintf("session error [session=%s]", e.SessionID)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// EngineError represents an engine-level failure. These are fatal: the
// process prints the diagnostic and exits.
type EngineError struct {
	baseError
	Operation string
}

// NewEngineError creates a new EngineError. The cause is additionally
// matched against ErrEngineFatal by errors.Is.
func NewEngineError(operation string, cause error) *EngineError {
	return &EngineError{
		baseError: baseError{
			message:    operation,
			cause:      cause,
			severity:   SeverityCritical,
			userFacing: true,
		},
		Operation: operation,
	}
}

// Error returns the formatted error message.
func (e *EngineError) Error() string {
	var parts []string
	parts = append(parts, "engine error")
	if e.Operation != "" {
		parts = append(parts, e.Operation)
	}
	if e.cause != nil {
		parts = append(parts, e.cause.Error())
	}
	return strings.Join(parts, ": ")
}

// Is reports whether target is ErrEngineFatal or matches the cause.
func (e *EngineError) Is(target error) bool {
	return target == ErrEngineFatal
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// userSentinels are reported to the user even when they arrive unwrapped.
var userSentinels = []error{
	ErrNoActiveSession,
	ErrNoOtherSession,
	ErrAmbiguousOrUnknown,
	ErrInvalidArgumentCount,
	ErrInvalidDigit,
	ErrConnectionClosed,
	ErrUnknownSession,
	ErrNotSupported,
}

// IsUserFacing returns true if the error message is safe to display on the
// console. This checks for:
//   - Errors implementing DomainError with IsUserFacing() returning true
//   - The coordination sentinels (no active session, ambiguous token, ...)
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var domainErr DomainError
	if As(err, &domainErr) {
		return domainErr.IsUserFacing()
	}

	for _, sentinel := range userSentinels {
		if Is(err, sentinel) {
			return true
		}
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement DomainError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var domainErr DomainError
	if As(err, &domainErr) {
		return domainErr.Severity()
	}
	return SeverityError
}

// IsFatal reports whether err should abort the process.
func IsFatal(err error) bool {
	return Is(err, ErrEngineFatal) || GetSeverity(err) == SeverityCritical
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to accept session")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
//
// Example:
//
//	err := errors.Wrapf(baseErr, "failed to end session %s", id)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
