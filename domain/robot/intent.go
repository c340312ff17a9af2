package robot

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Goal identifies the kind of an intent in its wire form.
type Goal string

const (
	GoalMove               Goal = "move"
	GoalExecuteRoutine     Goal = "execute_routine"
	GoalAttachTool         Goal = "attach_tool"
	GoalReleaseTool        Goal = "release_tool"
	GoalReleaseToolAndHome Goal = "release_tool_and_home"
	GoalSequence           Goal = "sequence"
	GoalUnknown            Goal = "unknown"
)

// Intent is a structured operator goal. The set of implementations is closed:
// Move, ExecuteRoutine, AttachTool, ReleaseTool, ReleaseToolAndHome and Sequence.
type Intent interface {
	Goal() Goal
	isIntent()
}

// Move navigates to a position.
type Move struct {
	Position string
}

// ExecuteRoutine runs a routine at a position, changing tools as needed.
type ExecuteRoutine struct {
	Routine  string
	Position string
}

// AttachTool picks up a tool from its stand.
type AttachTool struct {
	Tool string
}

// ReleaseTool returns the held tool to its stand.
type ReleaseTool struct{}

// ReleaseToolAndHome returns the held tool and parks at the home position.
type ReleaseToolAndHome struct{}

// Sequence is an ordered list of simple intents.
type Sequence struct {
	Steps []Intent
}

func (Move) Goal() Goal               { return GoalMove }
func (ExecuteRoutine) Goal() Goal     { return GoalExecuteRoutine }
func (AttachTool) Goal() Goal         { return GoalAttachTool }
func (ReleaseTool) Goal() Goal        { return GoalReleaseTool }
func (ReleaseToolAndHome) Goal() Goal { return GoalReleaseToolAndHome }
func (Sequence) Goal() Goal           { return GoalSequence }

func (Move) isIntent()               {}
func (ExecuteRoutine) isIntent()     {}
func (AttachTool) isIntent()         {}
func (ReleaseTool) isIntent()        {}
func (ReleaseToolAndHome) isIntent() {}
func (Sequence) isIntent()           {}

// Flatten returns the intent as an ordered list of simple intents.
func Flatten(i Intent) []Intent {
	if seq, ok := i.(Sequence); ok {
		return seq.Steps
	}
	return []Intent{i}
}

// wireIntent is the JSON shape produced by intent extraction.
// Top-level intents carry "goal"; sequence entries carry "action".
type wireIntent struct {
	Goal     string       `json:"goal,omitempty"`
	Action   string       `json:"action,omitempty"`
	Position string       `json:"position,omitempty"`
	Routine  string       `json:"routine,omitempty"`
	Tool     string       `json:"tool,omitempty"`
	Steps    []wireIntent `json:"steps,omitempty"`
}

// ParseIntent decodes the wire form of an intent. A goal of "unknown"
// returns (nil, nil): unknown is a terminal non-intent, not an error.
func ParseIntent(data []byte) (Intent, error) {
	var w wireIntent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIntent, err)
	}
	if Goal(w.Goal) == GoalUnknown {
		return nil, nil
	}
	return w.toIntent(w.Goal, true)
}

func (w wireIntent) toIntent(kind string, topLevel bool) (Intent, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case string(GoalMove):
		if w.Position == "" {
			return nil, fmt.Errorf("%w: move requires a position", ErrInvalidIntent)
		}
		return Move{Position: w.Position}, nil
	case string(GoalExecuteRoutine), "routine":
		if w.Routine == "" || w.Position == "" {
			return nil, fmt.Errorf("%w: execute_routine requires routine and position", ErrInvalidIntent)
		}
		return ExecuteRoutine{Routine: w.Routine, Position: w.Position}, nil
	case string(GoalAttachTool):
		if w.Tool == "" {
			return nil, fmt.Errorf("%w: attach_tool requires a tool", ErrInvalidIntent)
		}
		return AttachTool{Tool: w.Tool}, nil
	case string(GoalReleaseTool):
		return ReleaseTool{}, nil
	case string(GoalReleaseToolAndHome):
		return ReleaseToolAndHome{}, nil
	case string(GoalSequence):
		if !topLevel {
			return nil, fmt.Errorf("%w: nested sequence", ErrInvalidIntent)
		}
		seq := Sequence{Steps: make([]Intent, 0, len(w.Steps))}
		for i, s := range w.Steps {
			step, err := s.toIntent(s.Action, false)
			if err != nil {
				return nil, fmt.Errorf("sequence step %d: %w", i+1, err)
			}
			seq.Steps = append(seq.Steps, step)
		}
		return seq, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownGoal, kind)
	}
}

// MarshalIntent encodes an intent to its wire form.
func MarshalIntent(i Intent) ([]byte, error) {
	return json.Marshal(toWire(i, true))
}

func toWire(i Intent, topLevel bool) wireIntent {
	var w wireIntent
	switch v := i.(type) {
	case Move:
		w.Position = v.Position
	case ExecuteRoutine:
		w.Routine, w.Position = v.Routine, v.Position
	case AttachTool:
		w.Tool = v.Tool
	case Sequence:
		for _, s := range v.Steps {
			w.Steps = append(w.Steps, toWire(s, false))
		}
	}
	if topLevel {
		w.Goal = string(i.Goal())
	} else {
		w.Action = string(i.Goal())
	}
	return w
}
