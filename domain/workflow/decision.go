package workflow

import "time"

// Decision is the outcome of the human review gate.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRevision Decision = "revision"
	DecisionDeclined Decision = "declined"
	DecisionTimeout  Decision = "timeout"
)

// IsRejection returns true for decisions that end the run.
func (d Decision) IsRejection() bool {
	return d == DecisionDeclined || d == DecisionTimeout
}

// Review is a recorded review outcome.
type Review struct {
	Decision  Decision  `json:"decision"`
	Comments  string    `json:"comments,omitempty"`
	Reviewer  string    `json:"reviewer,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}
