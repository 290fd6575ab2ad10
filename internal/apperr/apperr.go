// Package apperr classifies service errors so transports can map them to
// responses without inspecting messages.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the category of an application error.
type Kind int

const (
	// KindInternal is an unexpected failure. Details are never shown to callers.
	KindInternal Kind = iota

	// KindValidation is bad or missing input the caller can fix.
	KindValidation

	// KindDuplicateID means a certificate id is already taken on the ledger.
	KindDuplicateID

	// KindNotFound means the requested certificate does not exist.
	KindNotFound

	// KindUnavailable means a backing service could not be reached in time.
	KindUnavailable

	// KindParse means a backing service answered with something unreadable.
	KindParse
)

// String returns a stable machine-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindDuplicateID:
		return "duplicate_id"
	case KindNotFound:
		return "not_found"
	case KindUnavailable:
		return "service_unavailable"
	case KindParse:
		return "parse_error"
	default:
		return "internal_error"
	}
}

// Error is an error tagged with a Kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	if e.Msg == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags err with kind. A nil err yields nil.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
