package match

import (
	"errors"
	"fmt"
)

// Kind classifies domain failures.
type Kind string

const (
	KindConflict    Kind = "conflict"
	KindNotFound    Kind = "not_found"
	KindForbidden   Kind = "forbidden"
	KindInvalidMove Kind = "invalid_move"
	KindPersistence Kind = "persistence"
)

// Error is the single domain error type. Compare with errors.Is against the
// Err* sentinels below.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

var (
	ErrConflict    = &Error{Kind: KindConflict}
	ErrNotFound    = &Error{Kind: KindNotFound}
	ErrForbidden   = &Error{Kind: KindForbidden}
	ErrInvalidMove = &Error{Kind: KindInvalidMove}
	ErrPersistence = &Error{Kind: KindPersistence}
)

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func Conflict(format string, args ...any) error {
	return newError(KindConflict, nil, format, args...)
}

func NotFound(format string, args ...any) error {
	return newError(KindNotFound, nil, format, args...)
}

func Forbidden(format string, args ...any) error {
	return newError(KindForbidden, nil, format, args...)
}

func InvalidMove(cause error, format string, args ...any) error {
	return newError(KindInvalidMove, cause, format, args...)
}

func Persistence(cause error, format string, args ...any) error {
	return newError(KindPersistence, cause, format, args...)
}

// KindOf returns the domain kind of err, or "" when err is not a domain error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
