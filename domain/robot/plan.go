package robot

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Action is the kind of a plan step.
type Action string

const (
	ActionMove    Action = "move"
	ActionRoutine Action = "routine"
)

// Reserved routine targets used for tool changes.
const (
	TargetToolAttach  = "tool_attach"
	TargetToolRelease = "tool_release"
)

// Step is one atomic action in a plan.
type Step struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	Action      Action   `json:"action"`
	Target      string   `json:"target"`
	Position    string   `json:"position,omitempty"`
	Tool        string   `json:"tool,omitempty"`
	Stabilize   *float64 `json:"stabilize,omitempty"`
	ActionAfter string   `json:"action_after,omitempty"`
	Verify      string   `json:"verify,omitempty"`
}

// IsToolAttach returns true for a tool attach routine step.
func (s Step) IsToolAttach() bool {
	return s.Action == ActionRoutine && s.Target == TargetToolAttach
}

// IsToolRelease returns true for a tool release routine step.
func (s Step) IsToolRelease() bool {
	return s.Action == ActionRoutine && s.Target == TargetToolRelease
}

// ApplyMetadata copies support metadata onto the step. A zero stabilize
// time is dropped, like the other unset fields.
func (s *Step) ApplyMetadata(m SupportMetadata) {
	if m.Stabilize != nil && *m.Stabilize != 0 {
		v := *m.Stabilize
		s.Stabilize = &v
	}
	s.ActionAfter = m.ActionAfter
	s.Verify = m.Verify
}

// Plan is an ordered list of steps. An empty plan signals a failed build.
type Plan []Step

// IsEmpty returns true if the plan has no steps.
func (p Plan) IsEmpty() bool {
	return len(p) == 0
}

// Summary returns one display line per step.
func (p Plan) Summary() []string {
	lines := make([]string, 0, len(p))
	for _, s := range p {
		lines = append(lines, fmt.Sprintf("%d. %s", s.ID, s.Name))
	}
	return lines
}

// Validate checks that step ids form the sequence 1..N.
func (p Plan) Validate() error {
	for i, s := range p {
		if s.ID != i+1 {
			return fmt.Errorf("%w: step at index %d has id %d", ErrInvalidStepID, i, s.ID)
		}
		if s.Action != ActionMove && s.Action != ActionRoutine {
			return fmt.Errorf("%w: %q", ErrInvalidAction, s.Action)
		}
		if s.Target == "" {
			return fmt.Errorf("%w: step %d", ErrMissingTarget, s.ID)
		}
	}
	return nil
}

// RoutineDisplayName formats a routine step name: "spot_weld" at "A" -> "Spot Weld at A".
func RoutineDisplayName(routine, position string) string {
	words := strings.Fields(strings.ReplaceAll(routine, "_", " "))
	for i, w := range words {
		r, n := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[n:])
	}
	return strings.Join(words, " ") + " at " + position
}
