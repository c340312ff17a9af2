// Package ledger provides an append-only audit trail of a workflow run.
package ledger

import (
	"encoding/json"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/robotflow/domain/workflow"
)

// EntryType classifies the type of ledger entry.
type EntryType string

const (
	EntryRunStarted      EntryType = "run_started"
	EntryRunCompleted    EntryType = "run_completed"
	EntryRunFailed       EntryType = "run_failed"
	EntryStateTransition EntryType = "state_transition"
	EntryPlanBuilt       EntryType = "plan_built"
	EntryPlanFailed      EntryType = "plan_failed"
	EntryReviewRequest   EntryType = "review_request"
	EntryReviewResult    EntryType = "review_result"
	EntryVerification    EntryType = "verification"
	EntryStepExecuted    EntryType = "step_executed"
	EntryFallback        EntryType = "fallback"
)

// Entry represents a single record in the ledger.
type Entry struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Type      EntryType       `json:"type"`
	RunID     string          `json:"run_id"`
	State     workflow.State  `json:"state,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
}

// TransitionDetails contains details for state transition entries.
type TransitionDetails struct {
	FromState workflow.State `json:"from_state"`
	ToState   workflow.State `json:"to_state"`
	Event     string         `json:"event"`
	Attempt   int            `json:"plan_attempt"`
}

// PlanDetails contains details for plan entries.
type PlanDetails struct {
	Attempt int      `json:"plan_attempt"`
	Steps   []string `json:"steps,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// ReviewRequestDetails contains details for review request entries.
type ReviewRequestDetails struct {
	Attempt  int       `json:"plan_attempt"`
	Deadline time.Time `json:"deadline"`
}

// ReviewResultDetails contains details for review result entries.
type ReviewResultDetails struct {
	Decision workflow.Decision `json:"decision"`
	Reviewer string            `json:"reviewer,omitempty"`
	Comments string            `json:"comments,omitempty"`
	Waited   time.Duration     `json:"waited"`
}

// VerificationDetails contains details for verification entries.
type VerificationDetails struct {
	Valid      bool           `json:"valid"`
	Violations map[string]int `json:"violations,omitempty"`
	Feedback   []string       `json:"feedback,omitempty"`
}

// StepDetails contains details for executed step entries.
type StepDetails struct {
	StepID   int           `json:"step_id"`
	Action   string        `json:"action"`
	Target   string        `json:"target"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// FallbackDetails contains details for fallback entries.
type FallbackDetails struct {
	Reason   workflow.FallbackReason `json:"reason"`
	Response string                  `json:"response"`
}

// NewEntry creates a new ledger entry.
func NewEntry(entryType EntryType, runID string, state workflow.State, details any) Entry {
	var detailsJSON json.RawMessage
	if details != nil {
		detailsJSON, _ = json.Marshal(details)
	}

	return Entry{
		ID:        generateEntryID(),
		Timestamp: time.Now(),
		Type:      entryType,
		RunID:     runID,
		State:     state,
		Details:   detailsJSON,
	}
}

var entrySeq atomic.Uint64

// generateEntryID creates a unique, sortable entry ID.
func generateEntryID() string {
	return time.Now().Format("20060102150405.000000000") + "-" + strconv.FormatUint(entrySeq.Add(1), 10)
}

// DecodeDetails unmarshals the entry details into the given struct.
func (e Entry) DecodeDetails(v any) error {
	if e.Details == nil {
		return nil
	}
	return json.Unmarshal(e.Details, v)
}
