// internal/engine/errors.go
package engine

import (
	"errors"
	"fmt"
)

// Class buckets an Error into one of the rejection categories the engine
// reports back to clients. Every class is rejected synchronously and leaves
// room/queue state untouched.
type Class int

const (
	// Validation covers malformed input: missing name, out-of-range
	// maxPlayers, an oversized party for a mode, unknown field sizes.
	Validation Class = iota
	// Conflict covers state collisions: room full, wrong password, team
	// imbalance, game already running.
	Conflict
	// Authorization covers non-host attempts at host-only actions.
	Authorization
	// NotFound covers unknown room or proposal ids, typically because the
	// target was already closed.
	NotFound
)

func (c Class) String() string {
	switch c {
	case Validation:
		return "validation"
	case Conflict:
		return "conflict"
	case Authorization:
		return "authorization"
	case NotFound:
		return "not_found"
	}
	return "unknown"
}

// Error is the engine's client-facing error type. The Class determines how
// handlers map it onto the wire; Msg is safe to show to the sender.
type Error struct {
	Class Class
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Class, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Validationf builds a Validation-class error.
func Validationf(format string, args ...interface{}) error {
	return &Error{Class: Validation, Msg: fmt.Sprintf(format, args...)}
}

// Conflictf builds a Conflict-class error.
func Conflictf(format string, args ...interface{}) error {
	return &Error{Class: Conflict, Msg: fmt.Sprintf(format, args...)}
}

// Authorizationf builds an Authorization-class error.
func Authorizationf(format string, args ...interface{}) error {
	return &Error{Class: Authorization, Msg: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a NotFound-class error.
func NotFoundf(format string, args ...interface{}) error {
	return &Error{Class: NotFound, Msg: fmt.Sprintf(format, args...)}
}

// ClassOf reports the Class of err, or ok=false if err is not an engine Error.
func ClassOf(err error) (Class, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Class, true
	}
	return 0, false
}

func is(err error, c Class) bool {
	cls, ok := ClassOf(err)
	return ok && cls == c
}

// IsValidation reports whether err carries the Validation class.
func IsValidation(err error) bool { return is(err, Validation) }

// IsConflict reports whether err carries the Conflict class.
func IsConflict(err error) bool { return is(err, Conflict) }

// IsAuthorization reports whether err carries the Authorization class.
func IsAuthorization(err error) bool { return is(err, Authorization) }

// IsNotFound reports whether err carries the NotFound class.
func IsNotFound(err error) bool { return is(err, NotFound) }
