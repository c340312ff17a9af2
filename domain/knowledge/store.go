// Package knowledge defines the read-only query contract of the cell
// knowledge graph: positions, tools, routines and the movement and support
// relationships between them.
package knowledge

import (
	"context"

	"github.com/felixgeelhaar/robotflow/domain/robot"
)

// Store is the knowledge graph query contract consumed by planning,
// verification and question answering. Implementations are read-only.
type Store interface {
	// ListPositions returns all positions ordered by name.
	ListPositions(ctx context.Context) ([]robot.Position, error)

	// ListTools returns all tools ordered by name.
	ListTools(ctx context.Context) ([]robot.Tool, error)

	// ListRoutines returns all routines ordered by name.
	ListRoutines(ctx context.Context) ([]robot.Routine, error)

	// GetRoutine returns a routine by name or ErrRoutineNotFound.
	GetRoutine(ctx context.Context, name string) (robot.Routine, error)

	// ToolLocations maps each tool with a stand to the stand's position.
	ToolLocations(ctx context.Context) (map[string]string, error)

	// AllowedMoves returns the positions directly reachable from position.
	AllowedMoves(ctx context.Context, position string) ([]string, error)

	// IsMoveAllowed reports whether a move edge connects a and b.
	IsMoveAllowed(ctx context.Context, a, b string) (bool, error)

	// SupportedPositions returns the positions where routine is usable.
	SupportedPositions(ctx context.Context, routine string) ([]string, error)

	// RoutineMetadata returns the support metadata of routine at position.
	// The boolean is false when the routine is not supported there.
	RoutineMetadata(ctx context.Context, routine, position string) (robot.SupportMetadata, bool, error)

	// ShortestPath returns the positions from a to b inclusive, or ErrNoPath.
	ShortestPath(ctx context.Context, a, b string) ([]string, error)
}

// Closer is implemented by stores holding external connections.
type Closer interface {
	Close(ctx context.Context) error
}
