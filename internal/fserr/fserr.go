// Package fserr defines the error taxonomy shared by the filesystem engine.
//
// Errors are classified into a small set of kinds so the API layer can map
// them to responses without inspecting error strings. Wrap with fmt.Errorf
// and %w as usual; KindOf walks the chain.
package fserr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// KindTransient covers I/O failures and external tool failures.
	KindTransient Kind = iota
	// KindAccessDenied means the path is outside the mount allowlist or
	// contains a traversal segment.
	KindAccessDenied
	// KindNotFound means a file, directory, or upload session is missing.
	KindNotFound
	// KindConflict means a name collision or an incomplete upload at
	// finalize time.
	KindConflict
	// KindInvalid means a malformed argument (empty name, bad index).
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindAccessDenied:
		return "access_denied"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalid:
		return "invalid"
	default:
		return "transient"
	}
}

// Error carries a kind and a human-readable reason.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match two fserr errors by kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New creates a classified error with a formatted reason.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...), Err: err}
}

// AccessDenied creates a KindAccessDenied error.
func AccessDenied(format string, args ...any) *Error {
	return New(KindAccessDenied, format, args...)
}

// NotFound creates a KindNotFound error.
func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

// Conflict creates a KindConflict error.
func Conflict(format string, args ...any) *Error {
	return New(KindConflict, format, args...)
}

// Invalid creates a KindInvalid error.
func Invalid(format string, args ...any) *Error {
	return New(KindInvalid, format, args...)
}

// KindOf returns the kind of err, or KindTransient when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
