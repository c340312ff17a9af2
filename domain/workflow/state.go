// Package workflow provides the domain model of an operator command's
// journey from classification through planning, review, verification and
// execution.
package workflow

// State is a node of the workflow state machine.
type State string

const (
	StateRouter      State = "router"       // Classify the command
	StatePlanning    State = "planning"     // Build a plan from the intent
	StateHumanReview State = "human_review" // Wait for operator approval
	StateVerify      State = "verify"       // Re-check the approved plan
	StateExecute     State = "execute"      // Hand the plan to the robot
	StateQuestion    State = "question"     // Answer an information query
	StateFallback    State = "fallback"     // Compose a failure response
	StateTerminal    State = "terminal"     // Done
)

// IsTerminal returns true for the terminal state.
func (s State) IsTerminal() bool {
	return s == StateTerminal
}

// IsValid returns true if the state is known.
func (s State) IsValid() bool {
	switch s {
	case StateRouter, StatePlanning, StateHumanReview, StateVerify,
		StateExecute, StateQuestion, StateFallback, StateTerminal:
		return true
	default:
		return false
	}
}

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// AllStates returns every workflow state.
func AllStates() []State {
	return []State{
		StateRouter,
		StatePlanning,
		StateHumanReview,
		StateVerify,
		StateExecute,
		StateQuestion,
		StateFallback,
		StateTerminal,
	}
}

// IntentClass is the router's classification of a command.
type IntentClass string

const (
	IntentAction   IntentClass = "action"
	IntentQuestion IntentClass = "question"
	IntentUnknown  IntentClass = "unknown"
)

// ParseIntentClass maps free text to a class, defaulting to unknown.
func ParseIntentClass(s string) IntentClass {
	switch IntentClass(s) {
	case IntentAction, IntentQuestion:
		return IntentClass(s)
	default:
		return IntentUnknown
	}
}
