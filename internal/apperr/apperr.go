// Package apperr defines the error kinds surfaced by the sync core.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for status reporting.
type Kind string

const (
	KindStorage   Kind = "storage"
	KindTransport Kind = "transport"
	KindAuth      Kind = "auth"
	KindUnknown   Kind = "unknown"
)

// Error carries a Kind, the failing operation and the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Storage wraps a local persistence failure.
func Storage(op string, err error) error {
	return wrap(KindStorage, op, err)
}

// Transport wraps a network or remote failure.
func Transport(op string, err error) error {
	return wrap(KindTransport, op, err)
}

// Auth wraps a missing or rejected client identifier.
func Auth(op string, err error) error {
	return wrap(KindAuth, op, err)
}

func wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
