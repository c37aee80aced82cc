// Package grouperr defines the error taxonomy returned by the group domain.
//
// Every business-rule failure is an *Error carrying a Kind and a short
// machine-readable Reason, so protocol handlers can map it to a status code
// without parsing messages. Store-level failures (network, decode) pass
// through unchanged and are treated as transient by callers.
//
// Sync outcomes (NotModified, Empty) are not errors; see syncgateway.
package grouperr

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an Error.
type Kind int

const (
	// Validation: malformed input.
	Validation Kind = iota + 1
	// Authorization: the actor's role or the group's strategy forbids the operation.
	Authorization
	// AlreadyHandled: a conditional update matched nothing because the request
	// already left PENDING.
	AlreadyHandled
	// QuotaExceeded: an ownership or size quota would be exceeded.
	QuotaExceeded
	// Conflict: transactional retries were exhausted.
	Conflict
	// NotFound: the addressed entity does not exist (or is deleted).
	NotFound
	// SuccessorNotMember: an ownership successor is not a member of the group.
	SuccessorNotMember
	// AlreadyMember: the user already belongs to the group.
	AlreadyMember
)

var kindNames = map[Kind]string{
	Validation:         "validation",
	Authorization:      "authorization",
	AlreadyHandled:     "already_handled",
	QuotaExceeded:      "quota_exceeded",
	Conflict:           "conflict",
	NotFound:           "not_found",
	SuccessorNotMember: "successor_not_member",
	AlreadyMember:      "already_member",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified domain error.
type Error struct {
	Kind   Kind
	Reason string
	Msg    string
	cause  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// Cause satisfies github.com/pkg/errors' causer.
func (e *Error) Cause() error { return e.cause }

// New returns a classified error with a stack trace attached.
func New(kind Kind, reason, format string, args ...any) error {
	return errors.WithStack(&Error{Kind: kind, Reason: reason, Msg: fmt.Sprintf(format, args...)})
}

// Wrap classifies cause. A nil cause yields nil.
func Wrap(cause error, kind Kind, reason, msg string) error {
	if cause == nil {
		return nil
	}
	return errors.WithStack(&Error{Kind: kind, Reason: reason, Msg: msg, cause: cause})
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err (or anything it wraps) is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == k
}

// ReasonOf returns the Reason of err's *Error, or "".
func ReasonOf(err error) string {
	if e, ok := As(err); ok {
		return e.Reason
	}
	return ""
}

// Business reports whether err is a business-rule violation that must not be
// retried.
func Business(err error) bool {
	_, ok := As(err)
	return ok
}
