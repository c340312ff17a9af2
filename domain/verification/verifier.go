// Package verification independently re-simulates a plan and checks it
// against topology and tool rules before execution.
package verification

import (
	"context"
	"fmt"
	"sort"

	"github.com/felixgeelhaar/robotflow/domain/knowledge"
	"github.com/felixgeelhaar/robotflow/domain/robot"
)

// Verifier checks plans against the knowledge graph. It keeps no state
// between calls and never writes robot state.
type Verifier struct {
	store knowledge.Store
}

// NewVerifier creates a verifier over the given knowledge store.
func NewVerifier(store knowledge.Store) *Verifier {
	return &Verifier{store: store}
}

// facts is the graph data loaded once per verification.
type facts struct {
	roles          map[string]robot.Role
	required       map[string]string
	standTool      map[string]string
	routinesByTool map[string][]string
}

func (v *Verifier) load(ctx context.Context) (facts, error) {
	positions, err := v.store.ListPositions(ctx)
	if err != nil {
		return facts{}, fmt.Errorf("list positions: %w", err)
	}
	routines, err := v.store.ListRoutines(ctx)
	if err != nil {
		return facts{}, fmt.Errorf("list routines: %w", err)
	}
	locations, err := v.store.ToolLocations(ctx)
	if err != nil {
		return facts{}, fmt.Errorf("tool locations: %w", err)
	}

	f := facts{
		roles:          make(map[string]robot.Role, len(positions)),
		required:       make(map[string]string, len(routines)),
		standTool:      make(map[string]string, len(locations)),
		routinesByTool: make(map[string][]string),
	}
	for _, p := range positions {
		f.roles[p.Name] = p.Role
	}
	for _, r := range routines {
		req := r.Required()
		f.required[r.Name] = req
		f.routinesByTool[req] = append(f.routinesByTool[req], r.Name)
	}

	// Stable reverse lookup when several tools share a stand position.
	tools := make([]string, 0, len(locations))
	for t := range locations {
		tools = append(tools, t)
	}
	sort.Strings(tools)
	for _, t := range tools {
		if _, taken := f.standTool[locations[t]]; !taken {
			f.standTool[locations[t]] = t
		}
	}
	return f, nil
}

// Verify walks every step from the state snapshot, accumulating all
// violations. The error is non-nil only when the knowledge store fails.
func (v *Verifier) Verify(ctx context.Context, plan robot.Plan, start robot.State) (Result, error) {
	f, err := v.load(ctx)
	if err != nil {
		return Result{}, err
	}

	res := newResult()
	pos := start.Position
	tool := start.Tool
	if tool == "" {
		tool = robot.NoTool
	}

	for i, step := range plan {
		n := i + 1
		switch step.Action {
		case robot.ActionMove:
			next, err := v.checkMove(ctx, f, &res, n, step.Target, pos, tool)
			if err != nil {
				return Result{}, err
			}
			pos = next
		case robot.ActionRoutine:
			next, err := v.checkRoutine(ctx, f, &res, n, step, tool)
			if err != nil {
				return Result{}, err
			}
			tool = next
		default:
			res.UnsupportedRoutines = append(res.UnsupportedRoutines, RoutineAt{Routine: string(step.Action), Position: step.Position})
			res.Feedback = append(res.Feedback, fmt.Sprintf("Step %d: Unknown action '%s'", n, step.Action))
		}
	}

	res.finalize()
	return res, nil
}

// checkMove returns the simulated position after the step. On any failure
// the position stays where it was.
func (v *Verifier) checkMove(ctx context.Context, f facts, res *Result, n int, target, pos, tool string) (string, error) {
	role, known := f.roles[target]
	if !known {
		res.MissingPositions = append(res.MissingPositions, target)
		res.Feedback = append(res.Feedback, fmt.Sprintf("Step %d: Position '%s' does not exist in graph", n, target))
		return pos, nil
	}

	holding := tool != robot.NoTool
	if standTool, isStand := f.standTool[target]; isStand && holding && tool != standTool {
		res.ToolConflicts = append(res.ToolConflicts,
			fmt.Sprintf("Step %d: Cannot move to '%s' (tool stand for '%s') while holding '%s'", n, target, standTool, tool))
		res.Feedback = append(res.Feedback,
			fmt.Sprintf("Step %d: Collision risk - must release '%s' before approaching '%s' tool stand", n, tool, standTool))
		return pos, nil
	}

	if role == robot.RoleWork && holding {
		supported := false
		for _, routine := range f.routinesByTool[tool] {
			_, ok, err := v.store.RoutineMetadata(ctx, routine, target)
			if err != nil {
				return pos, fmt.Errorf("routine metadata: %w", err)
			}
			if ok {
				supported = true
				break
			}
		}
		if !supported {
			res.ToolConflicts = append(res.ToolConflicts,
				fmt.Sprintf("Step %d: Cannot move to '%s' with tool '%s' - no supported routines for this tool at this position", n, target, tool))
			res.Feedback = append(res.Feedback,
				fmt.Sprintf("Step %d: Position '%s' does not support any routines using '%s'", n, target, tool))
			return pos, nil
		}
	}

	allowed, err := v.store.IsMoveAllowed(ctx, pos, target)
	if err != nil {
		return pos, fmt.Errorf("move check: %w", err)
	}
	if !allowed {
		res.IllegalEdges = append(res.IllegalEdges, Edge{From: pos, To: target})
		res.Feedback = append(res.Feedback, fmt.Sprintf("Step %d: No allowed move from '%s' to '%s'", n, pos, target))
		return pos, nil
	}
	return target, nil
}

// checkRoutine returns the simulated tool after the step.
func (v *Verifier) checkRoutine(ctx context.Context, f facts, res *Result, n int, step robot.Step, tool string) (string, error) {
	required, known := f.required[step.Target]
	if !known {
		res.UnsupportedRoutines = append(res.UnsupportedRoutines, RoutineAt{Routine: step.Target, Position: step.Position})
		res.Feedback = append(res.Feedback, fmt.Sprintf("Step %d: Routine '%s' does not exist in graph", n, step.Target))
		return tool, nil
	}

	if step.Position != "" {
		if _, ok := f.roles[step.Position]; !ok {
			res.MissingPositions = append(res.MissingPositions, step.Position)
			res.Feedback = append(res.Feedback, fmt.Sprintf("Step %d: Position '%s' for routine does not exist", n, step.Position))
			return tool, nil
		}
		_, ok, err := v.store.RoutineMetadata(ctx, step.Target, step.Position)
		if err != nil {
			return tool, fmt.Errorf("routine metadata: %w", err)
		}
		if !ok {
			res.UnsupportedRoutines = append(res.UnsupportedRoutines, RoutineAt{Routine: step.Target, Position: step.Position})
			res.Feedback = append(res.Feedback,
				fmt.Sprintf("Step %d: Routine '%s' not supported at '%s'", n, step.Target, step.Position))
		}
	}

	if required != robot.NoTool && tool != required {
		res.ToolConflicts = append(res.ToolConflicts,
			fmt.Sprintf("Step %d: Routine '%s' requires tool '%s', but robot has '%s'", n, step.Target, required, tool))
		res.Feedback = append(res.Feedback, fmt.Sprintf("Step %d: Tool mismatch - need '%s', have '%s'", n, required, tool))
	}

	switch step.Target {
	case robot.TargetToolAttach:
		if tool != robot.NoTool {
			res.ToolConflicts = append(res.ToolConflicts,
				fmt.Sprintf("Step %d: Cannot attach tool - robot already holding '%s'", n, tool))
			res.Feedback = append(res.Feedback, fmt.Sprintf("Step %d: Must release '%s' before attaching another tool", n, tool))
			return tool, nil
		}
		stood, ok := f.standTool[step.Position]
		if !ok {
			res.ToolConflicts = append(res.ToolConflicts, fmt.Sprintf("Step %d: No tool stand at '%s'", n, step.Position))
			res.Feedback = append(res.Feedback, fmt.Sprintf("Step %d: Cannot attach a tool at '%s'", n, step.Position))
			return tool, nil
		}
		return stood, nil
	case robot.TargetToolRelease:
		if tool == robot.NoTool {
			res.ToolConflicts = append(res.ToolConflicts, fmt.Sprintf("Step %d: Cannot release tool - robot not holding any tool", n))
			res.Feedback = append(res.Feedback, fmt.Sprintf("Step %d: No tool to release", n))
			return tool, nil
		}
		return robot.NoTool, nil
	}
	return tool, nil
}
