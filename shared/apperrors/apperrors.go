// Package apperrors classifies failures so that callers (HTTP adapters, event
// channel adapters, the retry executor) can decide how to react without
// matching on error strings.
package apperrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the failure class of an error.
type Kind int

const (
	// KindTransient is the default for unclassified errors: infrastructure
	// hiccups, timeouts, broker hand-off failures. Eligible for retry.
	KindTransient Kind = iota
	// KindNotFound means the referenced entity does not exist.
	KindNotFound
	// KindBusinessRule covers duplicates, insufficient stock and illegal
	// state transitions.
	KindBusinessRule
	// KindInvalid means the input or payload is malformed.
	KindInvalid
	// KindExhausted means the retry budget was consumed.
	KindExhausted
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindBusinessRule:
		return "business_rule"
	case KindInvalid:
		return "invalid"
	case KindExhausted:
		return "exhausted"
	default:
		return "transient"
	}
}

// Error carries a Kind and an optional machine readable code.
type Error struct {
	kind Kind
	code string
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.msg
	}
	if e.msg == "" {
		return e.err.Error()
	}
	return e.msg + ": " + e.err.Error()
}

func (e *Error) Unwrap() error { return e.err }

// Kind returns the failure class.
func (e *Error) Kind() Kind { return e.kind }

// Code returns the machine readable code, e.g. "insufficient_stock".
func (e *Error) Code() string { return e.code }

// New creates a classified error.
func New(kind Kind, code, msg string) *Error {
	return &Error{kind: kind, code: code, msg: msg}
}

// NotFound creates a NotFound error.
func NotFound(code, format string, args ...interface{}) *Error {
	return New(KindNotFound, code, fmt.Sprintf(format, args...))
}

// BusinessRule creates a BusinessRule error.
func BusinessRule(code, format string, args ...interface{}) *Error {
	return New(KindBusinessRule, code, fmt.Sprintf(format, args...))
}

// Invalid wraps err as malformed input.
func Invalid(err error, msg string) *Error {
	return &Error{kind: KindInvalid, code: "invalid", msg: msg, err: err}
}

// Transient wraps err as retryable.
func Transient(err error, msg string) *Error {
	return &Error{kind: KindTransient, code: "transient", msg: msg, err: err}
}

// Exhausted wraps the last error of a retry loop.
func Exhausted(err error, attempts uint) *Error {
	return &Error{
		kind: KindExhausted,
		code: "retry_exhausted",
		msg:  fmt.Sprintf("retry exhausted after %d attempts", attempts),
		err:  err,
	}
}

// With attaches detail to a sentinel error while keeping errors.Is working.
func With(sentinel *Error, format string, args ...interface{}) error {
	return errors.Wrap(sentinel, fmt.Sprintf(format, args...))
}

// KindOf returns the Kind of the outermost classified error in err's chain.
// Unclassified errors, context deadlines included, are transient.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.kind
	}
	return KindTransient
}

// CodeOf returns the code of the outermost classified error, or "internal".
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.code != "" {
		return appErr.code
	}
	return "internal"
}

// IsRetryable reports whether err may succeed on a later attempt.
func IsRetryable(err error) bool {
	return err != nil && KindOf(err) == KindTransient
}
