package ledger

import (
	"sync"
	"time"

	"github.com/felixgeelhaar/robotflow/domain/robot"
	"github.com/felixgeelhaar/robotflow/domain/verification"
	"github.com/felixgeelhaar/robotflow/domain/workflow"
)

// Ledger provides an append-only record of everything that happened
// during a run.
type Ledger struct {
	runID   string
	entries []Entry
	mu      sync.RWMutex
}

// New creates a new ledger for the given run.
func New(runID string) *Ledger {
	return &Ledger{
		runID:   runID,
		entries: make([]Entry, 0),
	}
}

// Append adds an entry to the ledger.
func (l *Ledger) Append(entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.RunID = l.runID
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.ID == "" {
		entry.ID = generateEntryID()
	}

	l.entries = append(l.entries, entry)
}

// Entries returns a copy of all entries.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := make([]Entry, len(l.entries))
	copy(entries, l.entries)
	return entries
}

// EntriesByType returns entries filtered by type.
func (l *Ledger) EntriesByType(entryType EntryType) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var filtered []Entry
	for _, e := range l.entries {
		if e.Type == entryType {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

// LastEntry returns the most recent entry, or nil if empty.
func (l *Ledger) LastEntry() *Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.entries) == 0 {
		return nil
	}
	entry := l.entries[len(l.entries)-1]
	return &entry
}

// Count returns the number of entries.
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// RunID returns the associated run ID.
func (l *Ledger) RunID() string {
	return l.runID
}

// RecordRunStarted records the operator command that started the run.
func (l *Ledger) RecordRunStarted(command string) {
	l.Append(NewEntry(EntryRunStarted, l.runID, workflow.StateRouter, map[string]string{
		"command": command,
	}))
}

// RecordRunCompleted records a run that reached terminal without fallback.
func (l *Ledger) RecordRunCompleted(response string) {
	l.Append(NewEntry(EntryRunCompleted, l.runID, workflow.StateTerminal, map[string]string{
		"response": response,
	}))
}

// RecordRunFailed records an unexpected failure.
func (l *Ledger) RecordRunFailed(state workflow.State, reason string) {
	l.Append(NewEntry(EntryRunFailed, l.runID, state, map[string]string{
		"reason": reason,
	}))
}

// RecordTransition records a state transition.
func (l *Ledger) RecordTransition(from, to workflow.State, event workflow.EventType, attempt int) {
	l.Append(NewEntry(EntryStateTransition, l.runID, to, TransitionDetails{
		FromState: from,
		ToState:   to,
		Event:     string(event),
		Attempt:   attempt,
	}))
}

// RecordPlanBuilt records a successful build.
func (l *Ledger) RecordPlanBuilt(attempt int, plan robot.Plan) {
	l.Append(NewEntry(EntryPlanBuilt, l.runID, workflow.StatePlanning, PlanDetails{
		Attempt: attempt,
		Steps:   plan.Summary(),
	}))
}

// RecordPlanFailed records a failed build.
func (l *Ledger) RecordPlanFailed(attempt int, reason string) {
	l.Append(NewEntry(EntryPlanFailed, l.runID, workflow.StatePlanning, PlanDetails{
		Attempt: attempt,
		Error:   reason,
	}))
}

// RecordReviewRequest records that a plan was put in front of a reviewer.
func (l *Ledger) RecordReviewRequest(attempt int, deadline time.Time) {
	l.Append(NewEntry(EntryReviewRequest, l.runID, workflow.StateHumanReview, ReviewRequestDetails{
		Attempt:  attempt,
		Deadline: deadline,
	}))
}

// RecordReviewResult records the reviewer's decision.
func (l *Ledger) RecordReviewResult(review workflow.Review, waited time.Duration) {
	l.Append(NewEntry(EntryReviewResult, l.runID, workflow.StateHumanReview, ReviewResultDetails{
		Decision: review.Decision,
		Reviewer: review.Reviewer,
		Comments: review.Comments,
		Waited:   waited,
	}))
}

// RecordVerification records a verifier result.
func (l *Ledger) RecordVerification(res verification.Result) {
	l.Append(NewEntry(EntryVerification, l.runID, workflow.StateVerify, VerificationDetails{
		Valid:      res.Valid,
		Violations: res.Categories(),
		Feedback:   res.Feedback,
	}))
}

// RecordStep records one dispatched step.
func (l *Ledger) RecordStep(step robot.Step, duration time.Duration, err error) {
	details := StepDetails{
		StepID:   step.ID,
		Action:   string(step.Action),
		Target:   step.Target,
		Duration: duration,
	}
	if err != nil {
		details.Error = err.Error()
	}
	l.Append(NewEntry(EntryStepExecuted, l.runID, workflow.StateExecute, details))
}

// RecordFallback records the fallback reason and response.
func (l *Ledger) RecordFallback(reason workflow.FallbackReason, response string) {
	l.Append(NewEntry(EntryFallback, l.runID, workflow.StateFallback, FallbackDetails{
		Reason:   reason,
		Response: response,
	}))
}
