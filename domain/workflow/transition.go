package workflow

import "fmt"

// FallbackReason selects the fallback response template.
type FallbackReason string

const (
	ReasonNone              FallbackReason = ""
	ReasonUnknownIntent     FallbackReason = "unknown_intent"
	ReasonAttemptsExhausted FallbackReason = "attempts_exhausted"
	ReasonDeclined          FallbackReason = "declined"
	ReasonTimeout           FallbackReason = "timeout"
	ReasonReplayUnavailable FallbackReason = "replay_unavailable"
	ReasonSystemError       FallbackReason = "system_error"
)

// Next is the result of a transition.
type Next struct {
	State    State
	Attempt  int
	Fallback FallbackReason
}

// allowed lists the legal edges of the state machine.
var allowed = map[State][]State{
	StateRouter:      {StatePlanning, StateHumanReview, StateQuestion, StateFallback},
	StatePlanning:    {StateHumanReview, StatePlanning, StateFallback},
	StateHumanReview: {StateVerify, StatePlanning, StateFallback},
	StateVerify:      {StateExecute, StatePlanning, StateFallback},
	StateExecute:     {StateTerminal, StateFallback},
	StateQuestion:    {StateTerminal, StateFallback},
	StateFallback:    {StateTerminal},
	StateTerminal:    {},
}

// CanTransition reports whether from -> to is an edge of the machine.
func CanTransition(from, to State) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Targets returns the states reachable from s in one transition.
func Targets(s State) []State {
	return append([]State(nil), allowed[s]...)
}

// Transition is the pure transition function of the workflow. attempt is
// the current plan attempt (starting at 1) and max the attempt budget.
// Failed builds and failed verifications consume an attempt; the run goes
// back to planning while the next attempt is within budget. Once the
// budget is spent the attempt stays at max and the run falls back.
// Operator revisions do not consume an attempt.
func Transition(from State, ev Event, attempt, max int) (Next, error) {
	if from.IsTerminal() {
		return Next{}, ErrRunTerminated
	}

	stay := Next{State: from, Attempt: attempt}
	to := func(s State) (Next, error) {
		return Next{State: s, Attempt: attempt}, nil
	}
	fallback := func(r FallbackReason) (Next, error) {
		return Next{State: StateFallback, Attempt: attempt, Fallback: r}, nil
	}
	retry := func() (Next, error) {
		n := attempt + 1
		if n <= max {
			return Next{State: StatePlanning, Attempt: n}, nil
		}
		return Next{State: StateFallback, Attempt: attempt, Fallback: ReasonAttemptsExhausted}, nil
	}

	if ev.Type == EventFailed && from != StateFallback {
		return fallback(ReasonSystemError)
	}

	switch from {
	case StateRouter:
		switch ev.Type {
		case EventClassified:
			switch ev.Intent {
			case IntentAction:
				if ev.Replay {
					return to(StateHumanReview)
				}
				return to(StatePlanning)
			case IntentQuestion:
				return to(StateQuestion)
			default:
				return fallback(ReasonUnknownIntent)
			}
		case EventReplayUnavailable:
			return fallback(ReasonReplayUnavailable)
		}

	case StatePlanning:
		switch ev.Type {
		case EventPlanBuilt:
			return to(StateHumanReview)
		case EventPlanFailed:
			return retry()
		}

	case StateHumanReview:
		if ev.Type == EventReviewed {
			switch ev.Decision {
			case DecisionApproved:
				return to(StateVerify)
			case DecisionRevision:
				return to(StatePlanning)
			case DecisionDeclined:
				return fallback(ReasonDeclined)
			case DecisionTimeout:
				return fallback(ReasonTimeout)
			}
		}

	case StateVerify:
		if ev.Type == EventVerified {
			if ev.Valid {
				return to(StateExecute)
			}
			return retry()
		}

	case StateExecute, StateQuestion, StateFallback:
		if ev.Type == EventCompleted || ev.Type == EventFailed {
			return to(StateTerminal)
		}
	}

	return stay, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev.Type, from)
}
