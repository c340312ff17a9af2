// Package planning expands structured operator intents into concrete robot
// plans using graph pathfinding and simulated tool state.
package planning

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/robotflow/domain/knowledge"
	"github.com/felixgeelhaar/robotflow/domain/robot"
)

// Builder turns an Intent into a Plan. It never writes robot state.
type Builder struct {
	store knowledge.Store
}

// NewBuilder creates a builder over the given knowledge store.
func NewBuilder(store knowledge.Store) *Builder {
	return &Builder{store: store}
}

// simulated is the planning-time (position, tool) pair.
type simulated struct {
	position string
	tool     string
}

func (s simulated) holdsTool() bool {
	return s.tool != "" && s.tool != robot.NoTool
}

// expansion accumulates steps for a single Build call.
type expansion struct {
	ctx       context.Context
	store     knowledge.Store
	sim       simulated
	steps     robot.Plan
	locations map[string]string
}

// Build expands intent starting from the state snapshot. On failure it
// returns a nil plan and an error matching ErrBuildFailed.
func (b *Builder) Build(ctx context.Context, intent robot.Intent, start robot.State) (robot.Plan, error) {
	if intent == nil {
		return nil, newError(KindUnknownGoal, nil, "Unknown goal type: %s", robot.GoalUnknown)
	}

	tool := start.Tool
	if tool == "" {
		tool = robot.NoTool
	}
	x := &expansion{
		ctx:   ctx,
		store: b.store,
		sim:   simulated{position: start.Position, tool: tool},
	}

	for _, sub := range robot.Flatten(intent) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := x.expand(sub); err != nil {
			return nil, err
		}
	}

	return x.steps, nil
}

func (x *expansion) expand(intent robot.Intent) error {
	switch in := intent.(type) {
	case robot.Move:
		return x.moveTo(in.Position)
	case robot.ExecuteRoutine:
		return x.routine(in.Routine, in.Position)
	case robot.AttachTool:
		return x.attach(in.Tool)
	case robot.ReleaseTool:
		return x.release()
	case robot.ReleaseToolAndHome:
		if err := x.release(); err != nil {
			return err
		}
		return x.home()
	case robot.Sequence:
		return newError(KindUnknownGoal, nil, "nested sequence is not supported")
	default:
		return newError(KindUnknownGoal, nil, "Unknown goal type: %T", intent)
	}
}

func (x *expansion) routine(name, position string) error {
	routine, err := x.store.GetRoutine(x.ctx, name)
	if err != nil {
		if errors.Is(err, knowledge.ErrRoutineNotFound) {
			return newError(KindUnknownRoutine, nil, "Unknown routine: %s", name)
		}
		return newError(KindKnowledge, err, "lookup routine %s", name)
	}

	meta, ok, err := x.store.RoutineMetadata(x.ctx, name, position)
	if err != nil {
		return newError(KindKnowledge, err, "lookup support for %s", name)
	}
	if !ok {
		valid, err := x.store.SupportedPositions(x.ctx, name)
		if err != nil {
			return newError(KindKnowledge, err, "lookup supported positions for %s", name)
		}
		return newError(KindUnsupportedRoutine, nil,
			"Routine '%s' is not supported at position '%s'. Valid positions: %v", name, position, valid)
	}

	required := routine.Required()
	if required != x.sim.tool {
		if x.sim.holdsTool() {
			if err := x.release(); err != nil {
				return err
			}
		}
		if required != robot.NoTool {
			if err := x.attach(required); err != nil {
				return err
			}
		}
	}

	if err := x.moveTo(position); err != nil {
		return err
	}

	step := robot.Step{
		Name:     robot.RoutineDisplayName(name, position),
		Action:   robot.ActionRoutine,
		Target:   name,
		Position: position,
	}
	step.ApplyMetadata(meta)
	x.append(step)
	return nil
}

func (x *expansion) attach(tool string) error {
	if x.sim.tool == tool {
		return nil
	}
	if x.sim.holdsTool() {
		if err := x.release(); err != nil {
			return err
		}
	}

	stand, err := x.standOf(tool)
	if err != nil {
		return err
	}
	if err := x.moveTo(stand); err != nil {
		return err
	}
	if err := x.toolChange(robot.TargetToolAttach, "Attach "+tool, stand, tool); err != nil {
		return err
	}
	x.sim.tool = tool
	return nil
}

func (x *expansion) release() error {
	if !x.sim.holdsTool() {
		return nil
	}
	tool := x.sim.tool

	stand, err := x.standOf(tool)
	if err != nil {
		return err
	}
	if err := x.moveTo(stand); err != nil {
		return err
	}
	if err := x.toolChange(robot.TargetToolRelease, "Release "+tool, stand, tool); err != nil {
		return err
	}
	x.sim.tool = robot.NoTool
	return nil
}

func (x *expansion) toolChange(target, name, stand, tool string) error {
	meta, _, err := x.store.RoutineMetadata(x.ctx, target, stand)
	if err != nil {
		return newError(KindKnowledge, err, "lookup %s metadata", target)
	}
	step := robot.Step{
		Name:     name,
		Action:   robot.ActionRoutine,
		Target:   target,
		Position: stand,
		Tool:     tool,
	}
	step.ApplyMetadata(meta)
	x.append(step)
	return nil
}

func (x *expansion) home() error {
	positions, err := x.store.ListPositions(x.ctx)
	if err != nil {
		return newError(KindKnowledge, err, "list positions")
	}
	for _, p := range positions {
		if p.Role == robot.RoleHome {
			return x.moveTo(p.Name)
		}
	}
	return newError(KindNoHome, nil, "no position with role %s", robot.RoleHome)
}

// moveTo appends one move step per path node after the current position.
func (x *expansion) moveTo(target string) error {
	if x.sim.position == target {
		return nil
	}

	path, err := x.store.ShortestPath(x.ctx, x.sim.position, target)
	switch {
	case errors.Is(err, knowledge.ErrPositionNotFound):
		return newError(KindUnknownPosition, nil, "Unknown position: %s", target)
	case errors.Is(err, knowledge.ErrNoPath):
		return newError(KindNoPath, nil, "No path from %s to %s", x.sim.position, target)
	case err != nil:
		return newError(KindKnowledge, err, "shortest path to %s", target)
	case len(path) == 0:
		return newError(KindNoPath, nil, "No path from %s to %s", x.sim.position, target)
	}

	for _, node := range path[1:] {
		x.append(robot.Step{
			Name:   "Move to " + node,
			Action: robot.ActionMove,
			Target: node,
		})
		x.sim.position = node
	}
	return nil
}

func (x *expansion) standOf(tool string) (string, error) {
	if x.locations == nil {
		locations, err := x.store.ToolLocations(x.ctx)
		if err != nil {
			return "", newError(KindKnowledge, err, "lookup tool locations")
		}
		x.locations = locations
	}
	stand, ok := x.locations[tool]
	if !ok {
		return "", newError(KindToolUnavailable, nil, "Tool %s has no stand location", tool)
	}
	return stand, nil
}

func (x *expansion) append(step robot.Step) {
	step.ID = len(x.steps) + 1
	x.steps = append(x.steps, step)
}

// Describe renders a build error as the feedback line fed into the next attempt.
func Describe(err error) string {
	return fmt.Sprintf("Failed to build sequence: %v", err)
}
