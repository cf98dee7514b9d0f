// Package storeerr defines the semantic error kinds every public
// operation of the storage engine returns through: InvalidArgument,
// NotFound, OutOfRange, IOError, Corruption, Unavailable, Unknown.
package storeerr

import (
	"errors"
	"fmt"
)

// Kind is one of the seven semantic error categories the engine uses
// on its hot path instead of exceptions.
type Kind int

const (
	Unknown Kind = iota
	InvalidArgument
	NotFound
	OutOfRange
	IOError
	Corruption
	Unavailable
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "InvalidArgument"
	case NotFound:
		return "NotFound"
	case OutOfRange:
		return "OutOfRange"
	case IOError:
		return "IOError"
	case Corruption:
		return "Corruption"
	case Unavailable:
		return "Unavailable"
	default:
		return "Unknown"
	}
}

// Error carries a Kind alongside a human-readable message and an
// optional wrapped cause, so callers can branch on Is(err, storeerr.NotFound)
// while %w-chains stay intact for logging.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a Kind-carrying error with a formatted message.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds a Kind-carrying error around an existing cause.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from err, returning Unknown if err does not
// carry one (including err == nil, which has no kind to report).
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return Unknown
}

// Is reports whether err (or any error it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
