package sequence

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/felixgeelhaar/robotflow/domain/robot"
)

func samplePlan() robot.Plan {
	return robot.Plan{
		{ID: 1, Name: "Move to StationB", Action: robot.ActionMove, Target: "StationB"},
		{
			ID: 2, Name: "Scan at StationB", Action: robot.ActionRoutine, Target: "scan", Position: "StationB",
			Stabilize: robot.Seconds(1.5), ActionAfter: "check_part", Verify: "check_part",
		},
	}
}

func TestName(t *testing.T) {
	t.Parallel()

	if got := Name("0f8fad5b-d9cb-469f-a165-70867728950e"); got != "Sequence_0f8fad5b" {
		t.Errorf("Name() = %q", got)
	}
	if got := Name("abc"); got != "Sequence_abc" {
		t.Errorf("Name() short = %q", got)
	}
}

func TestMarshal_KeyOrder(t *testing.T) {
	t.Parallel()

	out, err := Marshal(FromPlan("0f8fad5b-d9cb", "scan B", samplePlan()))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	text := string(out)

	if !strings.HasPrefix(text, "RobotSequence:\n") {
		t.Fatalf("missing RobotSequence root:\n%s", text)
	}
	order := []string{"id: 2", "name: Scan at StationB", "action: routine", "target: scan",
		"position: StationB", "stabilize: 1.5", "action_after: check_part", "verify: check_part"}
	last := -1
	for _, key := range order {
		idx := strings.Index(text, key)
		if idx < 0 {
			t.Fatalf("missing %q in:\n%s", key, text)
		}
		if idx < last {
			t.Errorf("key %q out of order", key)
		}
		last = idx
	}

	// Optional keys are omitted on plain moves.
	first := text[:strings.Index(text, "id: 2")]
	for _, key := range []string{"position:", "stabilize:", "tool:"} {
		if strings.Contains(first[strings.Index(first, "id: 1"):], key) {
			t.Errorf("move step should not carry %q", key)
		}
	}
}

func TestParse_RoundTrip(t *testing.T) {
	t.Parallel()

	doc := FromPlan("run-1", "scan B", samplePlan())
	out, err := Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	got, err := Parse(out)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if diff := cmp.Diff(samplePlan(), got.Plan()); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_Bare(t *testing.T) {
	t.Parallel()

	in := "name: x\ndescription: y\nsteps:\n  - id: 1\n    name: Move to Home\n    action: move\n    target: Home\n"
	doc, err := Parse([]byte(in))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(doc.Steps) != 1 || doc.Steps[0].Target != "Home" {
		t.Errorf("unexpected document: %+v", doc)
	}
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	in := "steps:\n  - id: 3\n    name: bad\n    action: move\n    target: Home\n"
	if _, err := Parse([]byte(in)); err == nil {
		t.Fatal("expected error for non-dense step ids")
	}
}

func TestRender_Header(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	out, err := Render(FromPlan("run-1", "scan B", samplePlan()), "run-1", "scan B", at)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	text := string(out)
	for _, want := range []string{"# Run ID: run-1\n", "# Command: \"scan B\"\n", "# Timestamp: 2026-01-02 03:04:05\n"} {
		if !strings.Contains(text, want) {
			t.Errorf("header missing %q", want)
		}
	}
	if !strings.HasSuffix(text, "\n\n") {
		t.Error("render should end with a blank line")
	}
}

func TestKey(t *testing.T) {
	t.Parallel()

	if got := Key("robotflow", "abc"); got != "robotflow/sequences/abc.yaml" {
		t.Errorf("Key() = %q", got)
	}
	if got := Key("", "abc"); got != "sequences/abc.yaml" {
		t.Errorf("Key() empty prefix = %q", got)
	}
}
