// Package apperr defines the error taxonomy shared by every service boundary.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalidArgument
	KindForbidden
	KindConflict
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error carries a stable kind, a human-readable message and, for validation
// failures, the offending fields.
type Error struct {
	Kind   Kind
	Msg    string
	Fields []string
	cause  error
}

func (e *Error) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %s (fields: %s)", e.Kind, e.Msg, strings.Join(e.Fields, ", "))
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.cause }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap keeps the cause reachable through errors.Is/As.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, cause: cause}
}

// Invalid builds an InvalidArgument error enumerating the offending fields.
func Invalid(msg string, fields ...string) *Error {
	return &Error{Kind: KindInvalidArgument, Msg: msg, Fields: fields}
}

// KindOf extracts the kind from err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsNotFound(err error) bool  { return KindOf(err) == KindNotFound }
func IsInvalid(err error) bool   { return KindOf(err) == KindInvalidArgument }
func IsForbidden(err error) bool { return KindOf(err) == KindForbidden }
