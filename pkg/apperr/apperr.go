// Package apperr classifies service errors so HTTP handlers can map them to status codes
// without inspecting messages.
package apperr

import (
	"errors"
)

// Kind is the category of an application error.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindAuth
	KindInvalidState
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindAuth:
		return "auth"
	case KindInvalidState:
		return "invalid_state"
	case KindUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// Error is a classified error. Message is safe to show to callers; Err is the internal cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports missing or malformed input.
func Validation(msg string) error { return &Error{Kind: KindValidation, Message: msg} }

// NotFound reports an unknown token, event or organization.
func NotFound(msg string) error { return &Error{Kind: KindNotFound, Message: msg} }

// Auth reports a missing session or organization membership.
func Auth(msg string) error { return &Error{Kind: KindAuth, Message: msg} }

// InvalidState reports an operation that does not apply to the current entity state.
func InvalidState(msg string) error { return &Error{Kind: KindInvalidState, Message: msg} }

// Upstream wraps a store or provider failure.
func Upstream(msg string, err error) error { return &Error{Kind: KindUpstream, Message: msg, Err: err} }

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
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

// Message returns the caller-safe message for err. Unclassified errors get fallback.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}
