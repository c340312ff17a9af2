package verification_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/felixgeelhaar/robotflow/domain/knowledge/graphtest"
	"github.com/felixgeelhaar/robotflow/domain/planning"
	"github.com/felixgeelhaar/robotflow/domain/robot"
	"github.com/felixgeelhaar/robotflow/domain/verification"
	"github.com/felixgeelhaar/robotflow/infrastructure/storage/memory"
)

func newVerifier(t *testing.T) (*verification.Verifier, *planning.Builder) {
	t.Helper()
	store, err := memory.NewKnowledgeStore(graphtest.Cell())
	if err != nil {
		t.Fatalf("NewKnowledgeStore() error: %v", err)
	}
	return verification.NewVerifier(store), planning.NewBuilder(store)
}

func move(id int, target string) robot.Step {
	return robot.Step{ID: id, Name: "Move to " + target, Action: robot.ActionMove, Target: target}
}

func routine(id int, target, position string) robot.Step {
	return robot.Step{ID: id, Name: target, Action: robot.ActionRoutine, Target: target, Position: position}
}

func TestVerifier_BuiltPlanIsValid(t *testing.T) {
	t.Parallel()
	v, b := newVerifier(t)
	ctx := context.Background()

	intents := []robot.Intent{
		robot.ExecuteRoutine{Routine: "scan", Position: "StationB"},
		robot.ExecuteRoutine{Routine: "pick", Position: "StationA"},
		robot.Sequence{Steps: []robot.Intent{
			robot.ExecuteRoutine{Routine: "scan", Position: "StationB"},
			robot.ReleaseToolAndHome{},
		}},
	}
	for _, intent := range intents {
		plan, err := b.Build(ctx, intent, graphtest.StartState())
		if err != nil {
			t.Fatalf("Build(%v) error: %v", intent, err)
		}
		res, err := v.Verify(ctx, plan, graphtest.StartState())
		if err != nil {
			t.Fatalf("Verify() error: %v", err)
		}
		if !res.Valid {
			t.Errorf("Verify(%v) invalid: %v", intent, res.Feedback)
		}
		if res.ViolationCount() != 0 || len(res.Feedback) != 0 {
			t.Errorf("valid result carries violations: %+v", res)
		}
	}
}

func TestVerifier_MissingPosition(t *testing.T) {
	t.Parallel()
	v, _ := newVerifier(t)

	plan := robot.Plan{move(1, "Junction"), move(2, "Atlantis")}
	res, err := v.Verify(context.Background(), plan, graphtest.StartState())
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if res.Valid {
		t.Fatal("plan with unknown position verified as valid")
	}
	if diff := cmp.Diff([]string{"Atlantis"}, res.MissingPositions); diff != "" {
		t.Errorf("MissingPositions mismatch (-want +got):\n%s", diff)
	}
	if len(res.Feedback) == 0 {
		t.Error("feedback is empty")
	}
}

func TestVerifier_IllegalEdgeKeepsStalePosition(t *testing.T) {
	t.Parallel()
	v, _ := newVerifier(t)

	// Home -> StationB is illegal; the simulated position stays at Home,
	// so the following Home -> Junction move is legal.
	plan := robot.Plan{move(1, "StationB"), move(2, "Junction"), move(3, "GripStand")}
	res, err := v.Verify(context.Background(), plan, graphtest.StartState())
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	want := []verification.Edge{{From: "Home", To: "StationB"}}
	if diff := cmp.Diff(want, res.IllegalEdges); diff != "" {
		t.Errorf("IllegalEdges mismatch (-want +got):\n%s", diff)
	}
	if res.Valid {
		t.Error("Valid = true, want false")
	}
}

func TestVerifier_AccumulatesAllViolations(t *testing.T) {
	t.Parallel()
	v, _ := newVerifier(t)

	plan := robot.Plan{
		move(1, "Nowhere"),
		move(2, "CamStand"),
		routine(3, "scan", "StationB"),
		routine(4, robot.TargetToolRelease, "CamStand"),
		routine(5, "pick", "StationB"),
	}
	res, err := v.Verify(context.Background(), plan, graphtest.StartState())
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}

	if len(res.MissingPositions) != 1 {
		t.Errorf("MissingPositions = %v", res.MissingPositions)
	}
	if len(res.IllegalEdges) != 1 {
		t.Errorf("IllegalEdges = %v", res.IllegalEdges)
	}
	if diff := cmp.Diff([]verification.RoutineAt{{Routine: "pick", Position: "StationB"}}, res.UnsupportedRoutines); diff != "" {
		t.Errorf("UnsupportedRoutines mismatch (-want +got):\n%s", diff)
	}
	// scan without Camera, release with no tool, pick without Gripper.
	if len(res.ToolConflicts) != 3 {
		t.Errorf("ToolConflicts = %v", res.ToolConflicts)
	}
	if len(res.Feedback) != res.ViolationCount() {
		t.Errorf("feedback lines = %d, violations = %d", len(res.Feedback), res.ViolationCount())
	}
}

func TestVerifier_ToolRules(t *testing.T) {
	t.Parallel()
	v, _ := newVerifier(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		start     robot.State
		plan      robot.Plan
		conflicts int
		valid     bool
	}{
		{
			name:      "stand collision",
			start:     robot.State{Position: "Junction", Tool: "Gripper"},
			plan:      robot.Plan{move(1, "CamStand")},
			conflicts: 1,
		},
		{
			name:  "own stand is fine",
			start: robot.State{Position: "Junction", Tool: "Camera"},
			plan:  robot.Plan{move(1, "CamStand")},
			valid: true,
		},
		{
			name:      "work position without routine for tool",
			start:     robot.State{Position: "CamStand", Tool: "Gripper"},
			plan:      robot.Plan{move(1, "StationB")},
			conflicts: 1,
		},
		{
			name:      "attach while holding",
			start:     robot.State{Position: "GripStand", Tool: "Camera"},
			plan:      robot.Plan{routine(1, robot.TargetToolAttach, "GripStand")},
			conflicts: 1,
		},
		{
			name:      "release without tool",
			start:     robot.State{Position: "GripStand", Tool: robot.NoTool},
			plan:      robot.Plan{routine(1, robot.TargetToolRelease, "GripStand")},
			conflicts: 1,
		},
		{
			name:  "attach resolves tool from stand",
			start: robot.State{Position: "GripStand", Tool: robot.NoTool},
			plan: robot.Plan{
				routine(1, robot.TargetToolAttach, "GripStand"),
				move(2, "StationA"),
				routine(3, "pick", "StationA"),
			},
			valid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := v.Verify(ctx, tt.plan, tt.start)
			if err != nil {
				t.Fatalf("Verify() error: %v", err)
			}
			if res.Valid != tt.valid {
				t.Errorf("Valid = %v, want %v (feedback %v)", res.Valid, tt.valid, res.Feedback)
			}
			if len(res.ToolConflicts) != tt.conflicts {
				t.Errorf("ToolConflicts = %v, want %d", res.ToolConflicts, tt.conflicts)
			}
		})
	}
}

func TestVerifier_Idempotent(t *testing.T) {
	t.Parallel()
	v, _ := newVerifier(t)
	ctx := context.Background()

	plan := robot.Plan{move(1, "StationB"), routine(2, "scan", "StationB"), move(3, "Junction")}
	first, err := v.Verify(ctx, plan, graphtest.StartState())
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	second, err := v.Verify(ctx, plan, graphtest.StartState())
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("results differ (-first +second):\n%s", diff)
	}
}

func TestResult_FeedbackText(t *testing.T) {
	t.Parallel()

	r := verification.Result{Feedback: []string{"a", "b"}}
	if got := r.FeedbackText(); got != "a\nb" {
		t.Errorf("FeedbackText() = %q", got)
	}
}
