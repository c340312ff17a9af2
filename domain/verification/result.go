package verification

import (
	"fmt"
	"strings"
)

// Edge is an ordered move between two positions.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (e Edge) String() string {
	return fmt.Sprintf("%s -> %s", e.From, e.To)
}

// RoutineAt is a routine placed at a position.
type RoutineAt struct {
	Routine  string `json:"routine"`
	Position string `json:"position"`
}

func (r RoutineAt) String() string {
	return fmt.Sprintf("%s at %s", r.Routine, r.Position)
}

// Result is the outcome of verifying a plan. Valid holds iff every
// violation list is empty.
type Result struct {
	Valid               bool        `json:"valid"`
	MissingPositions    []string    `json:"missing_positions"`
	IllegalEdges        []Edge      `json:"illegal_edges"`
	UnsupportedRoutines []RoutineAt `json:"unsupported_routines"`
	ToolConflicts       []string    `json:"tool_conflicts"`
	Feedback            []string    `json:"feedback"`
}

func newResult() Result {
	return Result{
		MissingPositions:    []string{},
		IllegalEdges:        []Edge{},
		UnsupportedRoutines: []RoutineAt{},
		ToolConflicts:       []string{},
		Feedback:            []string{},
	}
}

func (r *Result) finalize() {
	r.Valid = len(r.MissingPositions) == 0 &&
		len(r.IllegalEdges) == 0 &&
		len(r.UnsupportedRoutines) == 0 &&
		len(r.ToolConflicts) == 0
}

// FeedbackText joins the feedback lines for the next planning attempt.
func (r Result) FeedbackText() string {
	return strings.Join(r.Feedback, "\n")
}

// ViolationCount returns the total number of recorded violations.
func (r Result) ViolationCount() int {
	return len(r.MissingPositions) + len(r.IllegalEdges) + len(r.UnsupportedRoutines) + len(r.ToolConflicts)
}

// Categories returns the violation count per category, for metrics.
func (r Result) Categories() map[string]int {
	return map[string]int{
		"missing_position":    len(r.MissingPositions),
		"illegal_edge":        len(r.IllegalEdges),
		"unsupported_routine": len(r.UnsupportedRoutines),
		"tool_conflict":       len(r.ToolConflicts),
	}
}
