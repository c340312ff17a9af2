package workflow

import (
	"time"

	"github.com/felixgeelhaar/robotflow/domain/robot"
	"github.com/felixgeelhaar/robotflow/domain/verification"
)

// DefaultMaxAttempts is the default plan attempt budget.
const DefaultMaxAttempts = 3

// DefaultReviewTimeout is the default human review window.
const DefaultReviewTimeout = 120 * time.Second

// Run is one operator command processed end to end. It is the aggregate
// root of the workflow domain.
type Run struct {
	CorrelationID    string               `json:"correlation_id"`
	OperatorInput    string               `json:"operator_input"`
	State            State                `json:"state"`
	Intent           IntentClass          `json:"intent"`
	Plan             robot.Plan           `json:"plan,omitempty"`
	PlanAttempt      int                  `json:"plan_attempt"`
	MaxAttempts      int                  `json:"max_attempts"`
	Review           *Review              `json:"review,omitempty"`
	Deadline         time.Time            `json:"deadline,omitzero"`
	ValidationErrors string               `json:"validation_errors,omitempty"`
	Verification     *verification.Result `json:"verification,omitempty"`
	Fallback         FallbackReason       `json:"fallback_reason,omitempty"`
	Response         string               `json:"response,omitempty"`
	ReplayOf         string               `json:"replay_of,omitempty"`
	Error            string               `json:"error,omitempty"`
	StartTime        time.Time            `json:"start_time"`
	EndTime          time.Time            `json:"end_time,omitzero"`
}

// NewRun creates a run in the router state with attempt 1.
func NewRun(id, input string, maxAttempts int) *Run {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Run{
		CorrelationID: id,
		OperatorInput: input,
		State:         StateRouter,
		Intent:        IntentUnknown,
		PlanAttempt:   1,
		MaxAttempts:   maxAttempts,
		StartTime:     time.Now(),
	}
}

// Apply moves the run to the given transition result.
func (r *Run) Apply(n Next) {
	r.State = n.State
	if n.Attempt > r.PlanAttempt {
		r.PlanAttempt = n.Attempt
	}
	if n.Fallback != ReasonNone {
		r.Fallback = n.Fallback
	}
	if n.State.IsTerminal() {
		r.EndTime = time.Now()
	}
}

// Fire computes and applies the transition for ev.
func (r *Run) Fire(ev Event) (Next, error) {
	n, err := Transition(r.State, ev, r.PlanAttempt, r.MaxAttempts)
	if err != nil {
		return n, err
	}
	r.Apply(n)
	return n, nil
}

// Revision returns the operator's revision comments, if the last review asked for one.
func (r *Run) Revision() string {
	if r.Review != nil && r.Review.Decision == DecisionRevision {
		return r.Review.Comments
	}
	return ""
}

// PriorFeedback returns the verifier feedback of the last failed verification.
func (r *Run) PriorFeedback() string {
	if r.Verification != nil && !r.Verification.Valid {
		return r.Verification.FeedbackText()
	}
	return ""
}

// ShortID returns the first 8 characters of the correlation id.
func (r *Run) ShortID() string {
	return ShortID(r.CorrelationID)
}

// ShortID truncates an id to 8 characters.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Duration returns the elapsed run time.
func (r *Run) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return time.Since(r.StartTime)
	}
	return r.EndTime.Sub(r.StartTime)
}
