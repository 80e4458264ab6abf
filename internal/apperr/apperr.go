// Package apperr defines the error taxonomy shared by every domain package:
// validation, conflict, not-found and state errors, each carrying an optional
// remediation hint and field-level detail for the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation marks bad input shape or values.
	KindValidation
	// KindConflict marks an operation blocked by existing data.
	KindConflict
	// KindNotFound marks a missing entity.
	KindNotFound
	// KindState marks an operation forbidden by the entity's current state.
	KindState
)

// Error is the concrete error type used across services.
type Error struct {
	Kind    Kind
	Message string
	// Hint suggests a remediation to the caller, e.g. "suspend instead".
	Hint string
	// Fields holds per-field validation detail.
	Fields map[string]string
	// Meta carries extra payload surfaced to the caller (counts, ids).
	Meta map[string]any

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// WithHint attaches a remediation hint.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// WithField attaches field-level detail.
func (e *Error) WithField(name, detail string) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[name] = detail
	return e
}

// WithMeta attaches an extra payload entry.
func (e *Error) WithMeta(key string, value any) *Error {
	if e.Meta == nil {
		e.Meta = make(map[string]any)
	}
	e.Meta[key] = value
	return e
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// Validation builds a validation error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds a conflict error.
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a not-found error for a named entity.
func NotFound(entity string, id any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s not found: %v", entity, id)}
}

// State builds a state error.
func State(format string, args ...any) *Error {
	return &Error{Kind: KindState, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind of an error, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// As unwraps an *Error when present.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsConflict reports whether err is a conflict error.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsState reports whether err is a state error.
func IsState(err error) bool { return KindOf(err) == KindState }
