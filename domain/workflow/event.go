package workflow

// EventType identifies what a state's entry action produced.
type EventType string

const (
	EventClassified        EventType = "classified"         // Router classified the command
	EventReplayUnavailable EventType = "replay_unavailable" // Replay target missing
	EventPlanBuilt         EventType = "plan_built"         // Non-empty plan produced
	EventPlanFailed        EventType = "plan_failed"        // Build error or empty plan
	EventReviewed          EventType = "reviewed"           // Review gate resolved
	EventVerified          EventType = "verified"           // Verifier finished
	EventCompleted         EventType = "completed"          // Execute/Question/Fallback done
	EventFailed            EventType = "failed"             // Unexpected collaborator failure
)

// Event is the outcome of a state's entry action. Only the fields relevant
// to Type are set.
type Event struct {
	Type     EventType
	Intent   IntentClass
	Replay   bool
	Decision Decision
	Valid    bool
	Reason   string
}

// Classified reports the router's classification. replay marks an action
// whose plan was preloaded from history.
func Classified(intent IntentClass, replay bool) Event {
	return Event{Type: EventClassified, Intent: intent, Replay: replay}
}

// ReplayUnavailable reports that a replay could not be served.
func ReplayUnavailable(reason string) Event {
	return Event{Type: EventReplayUnavailable, Reason: reason}
}

// PlanBuilt reports a successful build.
func PlanBuilt() Event {
	return Event{Type: EventPlanBuilt}
}

// PlanFailed reports a build failure.
func PlanFailed(reason string) Event {
	return Event{Type: EventPlanFailed, Reason: reason}
}

// Reviewed reports the review decision.
func Reviewed(d Decision) Event {
	return Event{Type: EventReviewed, Decision: d}
}

// Verified reports the verification outcome.
func Verified(valid bool) Event {
	return Event{Type: EventVerified, Valid: valid}
}

// Completed reports that a final node produced its response.
func Completed() Event {
	return Event{Type: EventCompleted}
}

// Failed reports an unexpected system failure.
func Failed(reason string) Event {
	return Event{Type: EventFailed, Reason: reason}
}
