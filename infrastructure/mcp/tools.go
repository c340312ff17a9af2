// Package mcp exposes robot planning over the Model Context Protocol. It
// wraps github.com/felixgeelhaar/mcp-go.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/robotflow/domain/knowledge"
	"github.com/felixgeelhaar/robotflow/domain/planning"
	"github.com/felixgeelhaar/robotflow/domain/robot"
	"github.com/felixgeelhaar/robotflow/domain/verification"
	"github.com/felixgeelhaar/robotflow/infrastructure/security/validation"
)

// Tool names.
const (
	ToolPlanIntent    = "plan_intent"
	ToolVerifyPlan    = "verify_plan"
	ToolRobotState    = "robot_state"
	ToolListPositions = "list_positions"
)

// ErrInvalidInput indicates tool arguments that could not be decoded.
var ErrInvalidInput = errors.New("invalid tool input")

// MaxPlanSteps bounds the plans accepted by verify_plan.
const MaxPlanSteps = 256

const namePattern = `^[\pL\pN_.\- ]{1,64}$`

var (
	intentSchema = validation.NewSchema().
		AddRule("goal", validation.Required()).
		AddRule("goal", validation.AllowedValues(
			string(robot.GoalMove),
			string(robot.GoalExecuteRoutine),
			string(robot.GoalAttachTool),
			string(robot.GoalReleaseTool),
			string(robot.GoalReleaseToolAndHome),
			string(robot.GoalSequence),
		)).
		AddRule("position", validation.Pattern(namePattern)).
		AddRule("routine", validation.Pattern(namePattern)).
		AddRule("tool", validation.Pattern(namePattern)).
		AddRule("steps", validation.MaxItems(MaxPlanSteps))

	planSchema = validation.NewSchema().
		AddRule("steps", validation.Required()).
		AddRule("steps", validation.MaxItems(MaxPlanSteps))
)

// Tools implements the MCP tools over the knowledge and state stores.
// Tools never move the robot: plans are built and verified, not executed.
type Tools struct {
	store    knowledge.Store
	state    robot.StateStore
	builder  *planning.Builder
	verifier *verification.Verifier
}

// NewTools creates the tool set.
func NewTools(store knowledge.Store, state robot.StateStore) *Tools {
	return &Tools{
		store:    store,
		state:    state,
		builder:  planning.NewBuilder(store),
		verifier: verification.NewVerifier(store),
	}
}

// startInput optionally overrides the current robot state.
type startInput struct {
	Start *robot.State `json:"start,omitempty"`
}

func (t *Tools) start(ctx context.Context, override *robot.State) (robot.State, error) {
	if override != nil {
		s := *override
		if s.Tool == "" {
			s.Tool = robot.NoTool
		}
		return s, nil
	}
	return t.state.Get(ctx)
}

// PlanResult is the output of plan_intent.
type PlanResult struct {
	Plan         robot.Plan           `json:"plan"`
	Verification *verification.Result `json:"verification,omitempty"`
	Error        string               `json:"error,omitempty"`
}

// PlanIntent builds and verifies a plan for an intent object
// ({"goal": "move", "position": ...}). The intent may sit at the top
// level or under "intent".
func (t *Tools) PlanIntent(ctx context.Context, input json.RawMessage) (string, error) {
	var args struct {
		startInput
		Intent json.RawMessage `json:"intent"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	raw := args.Intent
	if len(raw) == 0 {
		raw = input
	}
	if err := intentSchema.Validate(raw); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	intent, err := robot.ParseIntent(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if intent == nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, robot.ErrUnknownGoal)
	}
	start, err := t.start(ctx, args.Start)
	if err != nil {
		return "", err
	}

	plan, err := t.builder.Build(ctx, intent, start)
	if err != nil {
		return encode(PlanResult{Error: planning.Describe(err)})
	}
	res, err := t.verifier.Verify(ctx, plan, start)
	if err != nil {
		return "", err
	}
	return encode(PlanResult{Plan: plan, Verification: &res})
}

// VerifyPlan verifies a list of steps ({"steps": [...]}).
func (t *Tools) VerifyPlan(ctx context.Context, input json.RawMessage) (string, error) {
	if err := planSchema.Validate(input); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	var args struct {
		startInput
		Steps robot.Plan `json:"steps"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if args.Steps.IsEmpty() {
		return "", fmt.Errorf("%w: no steps", ErrInvalidInput)
	}
	if err := args.Steps.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	start, err := t.start(ctx, args.Start)
	if err != nil {
		return "", err
	}
	res, err := t.verifier.Verify(ctx, args.Steps, start)
	if err != nil {
		return "", err
	}
	return encode(res)
}

// RobotState returns the persisted robot state.
func (t *Tools) RobotState(ctx context.Context, _ json.RawMessage) (string, error) {
	s, err := t.state.Get(ctx)
	if err != nil {
		return "", err
	}
	return encode(s)
}

// positionView is one entry of list_positions.
type positionView struct {
	robot.Position
	AllowedMoves []string `json:"allowed_moves"`
}

// ListPositions returns every position with its allowed moves.
func (t *Tools) ListPositions(ctx context.Context, _ json.RawMessage) (string, error) {
	positions, err := t.store.ListPositions(ctx)
	if err != nil {
		return "", err
	}
	out := make([]positionView, 0, len(positions))
	for _, p := range positions {
		moves, err := t.store.AllowedMoves(ctx, p.Name)
		if err != nil {
			return "", err
		}
		out = append(out, positionView{Position: p, AllowedMoves: moves})
	}
	return encode(out)
}

func encode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
