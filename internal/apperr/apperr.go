// Package apperr defines the error kinds shared by the booking pipeline.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure for logging and for the HTTP status it maps to.
type Kind int

const (
	KindInternal Kind = iota
	KindAuthRequired
	KindInvalidAction
	KindValidationFailed
	KindInvalidDateTime
	KindInvalidDuration
	KindEventNotFound
	KindProviderError
	KindProviderUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindAuthRequired:
		return "auth_required"
	case KindInvalidAction:
		return "invalid_action"
	case KindValidationFailed:
		return "validation_failed"
	case KindInvalidDateTime:
		return "invalid_datetime"
	case KindInvalidDuration:
		return "invalid_duration"
	case KindEventNotFound:
		return "event_not_found"
	case KindProviderError:
		return "provider_error"
	case KindProviderUnavailable:
		return "provider_unavailable"
	default:
		return "internal"
	}
}

// Violation is a single field-level validation problem.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the error type returned by every component of the pipeline.
type Error struct {
	Kind       Kind
	Op         string // operation that failed, e.g. "google.Update"
	EventID    string
	Violations []Violation
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.EventID != "" {
		fmt.Fprintf(&b, " (event %s)", e.EventID)
	}
	if len(e.Violations) > 0 {
		fields := make([]string, len(e.Violations))
		for i, v := range e.Violations {
			fields[i] = v.Field
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(fields, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind, so callers can
// write errors.Is(err, apperr.ErrEventNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.EventID == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrAuthRequired        = &Error{Kind: KindAuthRequired}
	ErrInvalidAction       = &Error{Kind: KindInvalidAction}
	ErrValidationFailed    = &Error{Kind: KindValidationFailed}
	ErrInvalidDateTime     = &Error{Kind: KindInvalidDateTime}
	ErrInvalidDuration     = &Error{Kind: KindInvalidDuration}
	ErrEventNotFound       = &Error{Kind: KindEventNotFound}
	ErrProviderError       = &Error{Kind: KindProviderError}
	ErrProviderUnavailable = &Error{Kind: KindProviderUnavailable}
)

// New returns an *Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Invalid returns a validation failure carrying the given violations.
func Invalid(op string, violations []Violation) *Error {
	return &Error{Kind: KindValidationFailed, Op: op, Violations: violations}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ViolationsOf returns the field violations attached to err, if any.
func ViolationsOf(err error) []Violation {
	var e *Error
	if errors.As(err, &e) {
		return e.Violations
	}
	return nil
}

// IsClientError reports whether the failure was caused by caller input.
func IsClientError(kind Kind) bool {
	switch kind {
	case KindInvalidAction, KindValidationFailed, KindInvalidDateTime, KindInvalidDuration:
		return true
	}
	return false
}
