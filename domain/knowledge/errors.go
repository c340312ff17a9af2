package knowledge

import "errors"

// Domain errors for knowledge graph queries.
var (
	// ErrRoutineNotFound indicates the routine does not exist.
	ErrRoutineNotFound = errors.New("routine not found")

	// ErrPositionNotFound indicates the position does not exist.
	ErrPositionNotFound = errors.New("position not found")

	// ErrNoPath indicates no chain of move edges connects two positions.
	ErrNoPath = errors.New("no path between positions")

	// ErrInvalidGraph indicates a graph definition failed validation.
	ErrInvalidGraph = errors.New("invalid knowledge graph")

	// ErrUnavailable indicates the backing store could not be reached.
	ErrUnavailable = errors.New("knowledge store unavailable")
)
