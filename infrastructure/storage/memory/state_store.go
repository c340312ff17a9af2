package memory

import (
	"context"
	"sync"
	"time"

	"github.com/felixgeelhaar/robotflow/domain/robot"
)

// StateStore keeps the robot state in memory. It starts at the default
// state (Home, no tool).
type StateStore struct {
	mu    sync.RWMutex
	state robot.State
	now   func() time.Time
}

// NewStateStore creates a store seeded with the default state.
func NewStateStore() *StateStore {
	return NewStateStoreWith(robot.DefaultState())
}

// NewStateStoreWith creates a store seeded with the given state.
func NewStateStoreWith(initial robot.State) *StateStore {
	if initial.Tool == "" {
		initial.Tool = robot.NoTool
	}
	return &StateStore{state: initial, now: time.Now}
}

// Get returns the current state.
func (s *StateStore) Get(ctx context.Context) (robot.State, error) {
	if err := ctx.Err(); err != nil {
		return robot.State{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, nil
}

// SetPosition records the current position.
func (s *StateStore) SetPosition(ctx context.Context, position string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Position = position
	s.state.LastUpdated = s.now().UTC()
	return nil
}

// SetTool records the current tool.
func (s *StateStore) SetTool(ctx context.Context, tool string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if tool == "" {
		tool = robot.NoTool
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Tool = tool
	s.state.LastUpdated = s.now().UTC()
	return nil
}

var _ robot.StateStore = (*StateStore)(nil)
