// Package apperr defines the typed error taxonomy for the execution
// substrate: client-caused errors, resource errors that the system converts
// into policy, integrity failures, backend failures, and fatal
// misconfiguration. Handler and transport code type-switches on these
// instead of matching error strings.
package apperr

import "fmt"

// Kind classifies an error for transport-layer mapping (e.g. to JSON-RPC
// error codes) without string matching.
type Kind string

const (
	KindClient    Kind = "client"
	KindResource  Kind = "resource"
	KindIntegrity Kind = "integrity"
	KindBackend   Kind = "backend"
	KindFatal     Kind = "fatal"
)

// Error is the common shape for all typed errors in this package.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	// Err is the wrapped underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// Client-caused errors — reported, never retried.

func ToolNotFound(name string) *Error {
	return newErr(KindClient, "ToolNotFound", fmt.Sprintf("tool not found: %s", name))
}

func InvalidName(name string) *Error {
	return newErr(KindClient, "InvalidName", fmt.Sprintf("invalid tool name: %s", name))
}

func InvalidTokenFormat(reason string) *Error {
	return newErr(KindClient, "InvalidTokenFormat", reason)
}

func InvalidParams(reason string) *Error {
	return newErr(KindClient, "InvalidParams", reason)
}

func SchemaValidationFailure(reason string) *Error {
	return newErr(KindClient, "SchemaValidationFailure", reason)
}

func NotInitialized(what string) *Error {
	return newErr(KindClient, "NotInitialized", fmt.Sprintf("%s not initialized", what))
}

func AuthUnavailable(kind string) *Error {
	return newErr(KindClient, "AuthUnavailable", fmt.Sprintf("no %s token available", kind))
}

// Resource errors — observed by the system, converted into policy.

// RateLimitExceededErr carries the tier that rejected the request.
type RateLimitExceededErr struct {
	Tier string
}

func (e *RateLimitExceededErr) Error() string {
	return fmt.Sprintf("RateLimitExceeded: tier %q exhausted its bucket", e.Tier)
}

func RateLimitExceeded(tier string) *RateLimitExceededErr {
	return &RateLimitExceededErr{Tier: tier}
}

func VisibilityTimeout(taskID string) *Error {
	return newErr(KindResource, "VisibilityTimeout", fmt.Sprintf("task %s exceeded its visibility deadline", taskID))
}

// TaskNotFound indicates the caller referenced a task ID with no matching
// in-flight record — e.g. Complete or Fail called twice for the same task.
func TaskNotFound(taskID string) *Error {
	return newErr(KindClient, "TaskNotFound", fmt.Sprintf("task %s is not in flight", taskID))
}

func DependencyUnsatisfied(taskID string) *Error {
	return newErr(KindResource, "DependencyUnsatisfied", fmt.Sprintf("task %s has unmet dependencies", taskID))
}

// Integrity errors — the affected record is destroyed; caller sees a generic
// Unavailable.

func TamperDetected(what string) *Error {
	return newErr(KindIntegrity, "TamperDetected", fmt.Sprintf("tamper detected in %s", what))
}

func ChecksumMismatch(what string) *Error {
	return newErr(KindIntegrity, "ChecksumMismatch", fmt.Sprintf("checksum mismatch in %s", what))
}

// Unavailable is the coarse error surfaced to callers in place of integrity
// details.
func Unavailable() *Error {
	return newErr(KindIntegrity, "Unavailable", "temporarily unavailable")
}

// Backend errors — retried at the HTTP layer / task layer per policy.

func BackendUnavailable(backend string, err error) *Error {
	return &Error{Kind: KindBackend, Code: "BackendUnavailable", Message: fmt.Sprintf("%s unavailable", backend), Err: err}
}

func BackendTimeout(backend string, err error) *Error {
	return &Error{Kind: KindBackend, Code: "BackendTimeout", Message: fmt.Sprintf("%s timed out", backend), Err: err}
}

// Fatal errors — surfaced so the transport layer may shut down cleanly.

func Misconfigured(reason string) *Error {
	return newErr(KindFatal, "Misconfigured", reason)
}

// RotationFailed indicates a token vault rotation could not complete.
func RotationFailed(kind string, err error) *Error {
	return &Error{Kind: KindBackend, Code: "RotationFailed", Message: fmt.Sprintf("rotation failed for %s", kind), Err: err}
}

// IntegrityFailure is raised by the vault when a stored token's checksum no
// longer matches its decrypted plaintext.
func IntegrityFailure(kind string) *Error {
	return newErr(KindIntegrity, "IntegrityFailure", fmt.Sprintf("integrity failure for %s token", kind))
}

// As reports whether err (or anything it wraps) is an *Error of the given
// code, mirroring the standard library's errors.As ergonomics for callers
// that only have a code string (e.g. from a config-driven retry policy).
func As(err error) (*Error, bool) {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e, true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
