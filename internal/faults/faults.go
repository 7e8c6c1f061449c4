// Package faults defines the error kinds shared by the session, ledger and
// export layers, and how they are classified for operators.
package faults

import (
	"errors"
	"strings"
)

var (
	// ErrValidation marks bad or missing operator input. State is unchanged.
	ErrValidation = errors.New("validation failure")
	// ErrBind marks a backend construction failure that was absorbed by
	// falling back to native playback.
	ErrBind = errors.New("resource bind failure")
	// ErrFatalPlayback marks a bind that could not be recovered.
	ErrFatalPlayback = errors.New("fatal playback failure")
	// ErrLookup marks a clip whose originating source is no longer selected.
	ErrLookup = errors.New("lookup failure")
	// ErrRelease marks a handle teardown error. It is only ever logged.
	ErrRelease = errors.New("release failure")
)

// Error carries a kind, the operation that failed, an operator-facing
// message and an optional cause.
type Error struct {
	Kind    error
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	parts := []string{e.Kind.Error()}
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Wrap tags a failure with one of the sentinel kinds above so callers can
// classify it with errors.Is.
func Wrap(kind error, op, message string, err error) error {
	if kind == nil {
		kind = ErrValidation
	}
	return &Error{
		Kind:    kind,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Err:     err,
	}
}

// Validation is shorthand for Wrap(ErrValidation, op, message, nil).
func Validation(op, message string) error {
	return Wrap(ErrValidation, op, message, nil)
}

// Message returns the operator-facing text of err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) && fe.Message != "" {
		return fe.Message
	}
	return err.Error()
}

// Kind reports which sentinel the error carries, or nil.
func Kind(err error) error {
	for _, kind := range []error{ErrValidation, ErrLookup, ErrFatalPlayback, ErrBind, ErrRelease} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
