// Package gatewayerr defines the gateway's semantic error categories.
//
// These are categories, not wrapped types: every component returns a plain
// error, and handlers classify it with Kind to pick a response and an audit
// reason. This mirrors the teacher's own error style (plain errors, no
// framework) while giving the control-plane a fixed, stable vocabulary to
// report back to callers.
package gatewayerr

import "errors"

type Kind string

const (
	Unauthorized         Kind = "unauthorized"
	Expired              Kind = "expired"
	IPMismatch           Kind = "ip-mismatch"
	RateLimited          Kind = "rate-limited"
	PolicyDenied         Kind = "policy-denied"
	OperationNotAllowed  Kind = "operation-not-permitted"
	InvalidPattern       Kind = "invalid-pattern"
	Unavailable          Kind = "unavailable"
	Timeout              Kind = "timeout"
	BadRequest           Kind = "bad-request"
	NotFound             Kind = "not-found"
	InvalidMode          Kind = "invalid-mode"
	ClientClosed         Kind = "client-closed"
	Internal             Kind = "internal-error"
)

// Error pairs a Kind with a human-readable reason. Handlers construct one
// at the point of failure and never let a raw driver/library error escape
// to a response or an audit record.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return string(e.Kind)
	}
	return e.Reason
}

func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// KindOf extracts the Kind from err, defaulting to Internal for anything
// that isn't a *Error. Never leaks the underlying error's message when it
// falls through to Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// ReasonOf extracts the human-readable reason, or a generic fallback.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return "internal error"
}
