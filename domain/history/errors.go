package history

import "errors"

// Domain errors for history store operations.
var (
	// ErrRunNotFound is returned when a run does not exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunExists is returned when attempting to create a run that already exists.
	ErrRunExists = errors.New("run already exists")

	// ErrInvalidRunID is returned when a run ID is empty.
	ErrInvalidRunID = errors.New("invalid run ID")

	// ErrStepNotFound is returned when a run step does not exist.
	ErrStepNotFound = errors.New("run step not found")

	// ErrInvalidStatus is returned for a status outside the allowed set.
	ErrInvalidStatus = errors.New("invalid status")
)
