// Package history provides the domain contract for execution history:
// runs and the steps dispatched for each of them.
package history

import (
	"context"
	"strings"
	"time"

	"github.com/felixgeelhaar/robotflow/domain/robot"
)

// RunStatus is the lifecycle status of an executed run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// IsValid reports whether the status is one of the known values.
func (s RunStatus) IsValid() bool {
	switch s {
	case RunPending, RunRunning, RunCompleted, RunFailed:
		return true
	}
	return false
}

// IsFinal reports whether the run has finished.
func (s RunStatus) IsFinal() bool {
	return s == RunCompleted || s == RunFailed
}

// StepState is the lifecycle state of a single dispatched step.
type StepState string

const (
	StepPending   StepState = "pending"
	StepRunning   StepState = "running"
	StepCompleted StepState = "completed"
	StepError     StepState = "error"
)

// IsValid reports whether the state is one of the known values.
func (s StepState) IsValid() bool {
	switch s {
	case StepPending, StepRunning, StepCompleted, StepError:
		return true
	}
	return false
}

// Run is a persisted execution of an approved plan.
type Run struct {
	ID            string     `json:"run_id"`
	OperatorInput string     `json:"operator_input"`
	Sequence      robot.Plan `json:"sequence"`
	Status        RunStatus  `json:"status"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    time.Time  `json:"finished_at,omitzero"`
}

// Step is one dispatched plan step.
type Step struct {
	ID         int64        `json:"step_id"`
	RunID      string       `json:"run_id"`
	Position   string       `json:"position"`
	Action     robot.Action `json:"action"`
	State      StepState    `json:"state"`
	Error      string       `json:"error,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at,omitzero"`
}

// Store defines the interface for history persistence.
// Implementations exist for memory, SQLite, PostgreSQL and MongoDB.
type Store interface {
	// CreateRun persists a new run in pending status.
	CreateRun(ctx context.Context, run Run) error

	// SetRunStatus updates the run status. Final statuses stamp FinishedAt.
	SetRunStatus(ctx context.Context, id string, status RunStatus) error

	// AddStep records a step in running state and returns its id.
	AddStep(ctx context.Context, runID, position string, action robot.Action) (int64, error)

	// FinishStep marks a step completed, or error when errMsg is not empty.
	FinishStep(ctx context.Context, stepID int64, errMsg string) error

	// Get retrieves a run by ID.
	Get(ctx context.Context, id string) (Run, error)

	// LatestCompleted returns the most recently started completed run.
	LatestCompleted(ctx context.Context) (Run, error)

	// List returns runs matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]Run, error)

	// Steps returns the steps of a run in dispatch order.
	Steps(ctx context.Context, runID string) ([]Step, error)

	// FailedPositions returns the distinct positions of steps that errored.
	FailedPositions(ctx context.Context) ([]string, error)
}

// ListFilter specifies criteria for listing runs.
type ListFilter struct {
	// Status filters by run status (empty means all).
	Status []RunStatus

	// FromTime filters runs started at or after this time.
	FromTime time.Time

	// ToTime filters runs started before this time.
	ToTime time.Time

	// InputPattern filters by operator input (substring match).
	InputPattern string

	// Limit is the maximum number of runs to return (0 = no limit).
	Limit int
}

// OnDate returns a filter covering one calendar day in the location of day.
func OnDate(day time.Time) ListFilter {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return ListFilter{FromTime: start, ToTime: start.AddDate(0, 0, 1)}
}

// Recent returns a filter for the newest n runs.
func Recent(n int) ListFilter {
	return ListFilter{Limit: n}
}

// Matches reports whether a run satisfies the filter, ignoring Limit.
func (f ListFilter) Matches(r Run) bool {
	if len(f.Status) > 0 {
		found := false
		for _, s := range f.Status {
			if r.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.FromTime.IsZero() && r.StartedAt.Before(f.FromTime) {
		return false
	}
	if !f.ToTime.IsZero() && !r.StartedAt.Before(f.ToTime) {
		return false
	}
	if f.InputPattern != "" && !containsFold(r.OperatorInput, f.InputPattern) {
		return false
	}
	return true
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
