// Package cferrors defines the eight-kind error taxonomy every engine
// operation surfaces exactly one of, and the SafeError contract that keeps
// secrets out of log lines and CLI output.
package cferrors

import (
	"errors"
	"fmt"
)

// Kind classifies an engine-level failure.
type Kind string

const (
	KindInvalidInput               Kind = "invalid_input"
	KindToolMissing                Kind = "tool_missing"
	KindDNSFailure                 Kind = "dns_failure"
	KindAuthFailure                Kind = "auth_failure"
	KindPasswordRetrievalFailure   Kind = "password_retrieval_failure"
	KindMaterializeFailure         Kind = "materialize_failure"
	KindIOError                    Kind = "io_error"
	KindTimeout                    Kind = "timeout"
)

// SafeError is an error additionally carrying a message guaranteed not to
// contain secret material, suitable for logs and CLI responses.
type SafeError interface {
	error
	SafeMessage() string
	Kind() Kind
}

type cfError struct {
	kind    Kind
	safeMsg string
	cause   error
}

func (e *cfError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.safeMsg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.safeMsg)
}

func (e *cfError) SafeMessage() string { return e.safeMsg }
func (e *cfError) Kind() Kind          { return e.kind }
func (e *cfError) Unwrap() error       { return e.cause }

// New builds a SafeError of the given kind.
func New(kind Kind, safeMsg string) SafeError {
	return &cfError{kind: kind, safeMsg: safeMsg}
}

// Wrap builds a SafeError of the given kind, chaining cause for %w-style
// unwrapping while keeping safeMsg as the only text guaranteed log-safe.
func Wrap(kind Kind, safeMsg string, cause error) SafeError {
	return &cfError{kind: kind, safeMsg: safeMsg, cause: cause}
}

// As reports whether err (or something it wraps) is a SafeError, returning
// it if so.
func As(err error) (SafeError, bool) {
	var se SafeError
	ok := errors.As(err, &se)
	return se, ok
}

// Is reports whether err classifies as kind.
func Is(err error, kind Kind) bool {
	se, ok := As(err)
	return ok && se.Kind() == kind
}
