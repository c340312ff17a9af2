package workflow

import "errors"

// Domain errors for the workflow.
var (
	// ErrInvalidTransition indicates an event is not accepted in the current state.
	ErrInvalidTransition = errors.New("invalid workflow transition")

	// ErrRunTerminated indicates an event was sent to a finished run.
	ErrRunTerminated = errors.New("workflow run already terminated")

	// ErrReviewTimeout indicates the review deadline elapsed.
	ErrReviewTimeout = errors.New("review timed out")
)
