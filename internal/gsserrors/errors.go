// Package gsserrors defines the error taxonomy surfaced by the RPCSEC_GSS
// client credential/context engine to its RPC-layer caller.
//
// Import graph: gsserrors <- everything else in this module. It is a leaf
// package with no internal dependencies, the same way the teacher's
// pkg/metadata/errors is kept dependency-free so lock/metadata/store
// implementations can all import it without cycles.
package gsserrors

import (
	"errors"
	"fmt"
)

// Code identifies the category of a failure in the credential engine.
type Code int

const (
	// Retryable indicates a transient parse or allocation issue on a
	// downcall; the RPC layer should re-invoke refresh.
	Retryable Code = iota + 1

	// DaemonAbsent indicates no reader has ever opened the upcall pipe;
	// surfaced to the caller as AccessDenied after the 15s probe.
	DaemonAbsent

	// KeyExpired indicates the user's credential expired; the Credential
	// is marked NEGATIVE with a cooldown.
	KeyExpired

	// AccessDenied indicates a policy refusal from the daemon.
	AccessDenied

	// ContextExpired is hinted by the mechanism during wrap/unwrap; it
	// clears the UPTODATE flag and triggers renewal on next use.
	ContextExpired

	// Interrupted indicates a fatal signal arrived while a task waited
	// for a downcall.
	Interrupted

	// Protocol indicates a malformed downcall or verifier; fatal for the
	// current call, not for the Credential.
	Protocol

	// Internal indicates a mechanism import returned a status the engine
	// does not know how to interpret; this is a bug and should abort.
	Internal
)

// String returns a human-readable name for the error code.
func (c Code) String() string {
	switch c {
	case Retryable:
		return "Retryable"
	case DaemonAbsent:
		return "DaemonAbsent"
	case KeyExpired:
		return "KeyExpired"
	case AccessDenied:
		return "AccessDenied"
	case ContextExpired:
		return "ContextExpired"
	case Interrupted:
		return "Interrupted"
	case Protocol:
		return "Protocol"
	case Internal:
		return "Internal"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// Error is a categorized engine error. Callers match on Code rather than
// on message text.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap allows errors.Is/errors.As to reach the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same Code, so callers
// can write errors.Is(err, gsserrors.New(gsserrors.KeyExpired, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New constructs an *Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap constructs an *Error with the given code, message, and cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the Code from err, if err is (or wraps) an *Error.
// Returns Internal and false if err does not carry a Code.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return Internal, false
}
