package robot

import (
	"context"
	"time"
)

// NoTool is the sentinel for "no tool attached".
const NoTool = "none"

// State is the persisted robot state. Planning and verification read it;
// only execution writes it.
type State struct {
	Position    string    `json:"current_position"`
	Tool        string    `json:"current_tool"`
	LastUpdated time.Time `json:"last_updated"`
}

// DefaultState is the state seeded into an empty store.
func DefaultState() State {
	return State{Position: "Home", Tool: NoTool, LastUpdated: time.Now().UTC()}
}

// HoldsTool returns true if a tool is attached.
func (s State) HoldsTool() bool {
	return s.Tool != "" && s.Tool != NoTool
}

// StateStore persists the single robot state record.
type StateStore interface {
	// Get returns the current state.
	Get(ctx context.Context) (State, error)

	// SetPosition records a new current position.
	SetPosition(ctx context.Context, position string) error

	// SetTool records a new current tool (NoTool to clear).
	SetTool(ctx context.Context, tool string) error
}
