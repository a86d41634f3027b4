// Package apperr defines the error kinds shared by the domain services and
// their mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind classifies a domain error.
type Kind int

// Kind constants define the error taxonomy.
const (
	// KindInternal is an unexpected failure.
	KindInternal Kind = iota
	// KindValidation is a broken form-layer invariant.
	KindValidation
	// KindNotFound is an entity lookup miss.
	KindNotFound
	// KindForbidden is a visibility or policy denial.
	KindForbidden
	// KindConflict is a violated uniqueness constraint.
	KindConflict
	// KindRateLimited is a tripped limiter.
	KindRateLimited
	// KindExternal is a failed call to storage, geocoding or another collaborator.
	KindExternal
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	case KindExternal:
		return "external"
	default:
		return "internal"
	}
}

// Error is a domain error with an optional set of per-field messages.
type Error struct {
	Kind        Kind
	Message     string
	FieldErrors map[string][]string
	Err         error
}

// Error implements error.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && len(e.FieldErrors) > 0 {
		msg = strings.Join(e.Messages(), " ")
	}
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Add records a message against field. An empty field is a non-field error.
func (e *Error) Add(field, message string) *Error {
	if e.FieldErrors == nil {
		e.FieldErrors = make(map[string][]string)
	}
	e.FieldErrors[field] = append(e.FieldErrors[field], message)
	return e
}

// HasErrors reports whether any field messages were recorded.
func (e *Error) HasErrors() bool {
	return e != nil && len(e.FieldErrors) > 0
}

// Field returns the messages recorded for field.
func (e *Error) Field(field string) []string {
	if e == nil {
		return nil
	}
	return e.FieldErrors[field]
}

// Messages returns every field message ordered by field name.
func (e *Error) Messages() []string {
	if e == nil {
		return nil
	}
	fields := make([]string, 0, len(e.FieldErrors))
	for field := range e.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	var out []string
	for _, field := range fields {
		out = append(out, e.FieldErrors[field]...)
	}
	return out
}

// OrNil returns nil when no field messages were recorded.
func (e *Error) OrNil() error {
	if !e.HasErrors() && e.Message == "" {
		return nil
	}
	return e
}

// Validation returns a validation error with a non-field message.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewValidation returns an empty validation error to collect field messages into.
func NewValidation() *Error {
	return &Error{Kind: KindValidation}
}

// FieldError returns a validation error for a single field.
func FieldError(field, message string) *Error {
	return NewValidation().Add(field, message)
}

// NotFound returns a lookup miss for what.
func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s not found", what)}
}

// Forbidden returns a policy denial.
func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// Conflict returns a uniqueness violation reported against field.
func Conflict(field, message string, cause error) *Error {
	e := &Error{Kind: KindConflict, Err: cause}
	return e.Add(field, message)
}

// RateLimited returns a limiter denial.
func RateLimited(message string) *Error {
	return &Error{Kind: KindRateLimited, Message: message}
}

// External wraps a collaborator failure.
func External(message string, cause error) *Error {
	return &Error{Kind: KindExternal, Message: message, Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) && appErr != nil {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps err onto a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindConflict, KindExternal:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
