package planning

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a plan could not be built.
type ErrorKind string

const (
	KindUnknownGoal        ErrorKind = "unknown_goal"
	KindUnknownRoutine     ErrorKind = "unknown_routine"
	KindUnsupportedRoutine ErrorKind = "unsupported_routine"
	KindUnknownPosition    ErrorKind = "unknown_position"
	KindNoPath             ErrorKind = "no_path"
	KindToolUnavailable    ErrorKind = "tool_unavailable"
	KindNoHome             ErrorKind = "no_home"
	KindKnowledge          ErrorKind = "knowledge"
)

// ErrBuildFailed matches every *Error via errors.Is.
var ErrBuildFailed = errors.New("sequence build failed")

// Error is a planning failure. It is recovered by replanning, never by
// retrying inside the builder.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports ErrBuildFailed as a match for any planning error.
func (e *Error) Is(target error) bool {
	return target == ErrBuildFailed
}

func newError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of a planning error, or "" for other errors.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
