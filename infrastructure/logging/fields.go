package logging

import (
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/felixgeelhaar/robotflow/domain/workflow"
)

// Field is a function that applies structured data to a log event.
type Field func(*bolt.Event) *bolt.Event

// Common field constructors for workflow logging.

// CorrelationID adds the run correlation id.
func CorrelationID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("correlation_id", id)
	}
}

// State adds the workflow state.
func State(s workflow.State) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("workflow_state", string(s))
	}
}

// FromState adds a from_state field for transitions.
func FromState(s workflow.State) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("from_state", string(s))
	}
}

// ToState adds a to_state field for transitions.
func ToState(s workflow.State) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("to_state", string(s))
	}
}

// Intent adds the router classification.
func Intent(c workflow.IntentClass) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("intent", string(c))
	}
}

// Attempt adds the plan attempt counter.
func Attempt(n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("plan_attempt", n)
	}
}

// StepCount adds the number of plan steps.
func StepCount(n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("step_count", n)
	}
}

// StepID adds a plan step id.
func StepID(id int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("step_id", id)
	}
}

// Position adds a position name.
func Position(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("position", name)
	}
}

// Tool adds a tool name.
func Tool(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("tool", name)
	}
}

// Routine adds a routine name.
func Routine(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("routine", name)
	}
}

// Decision adds a review decision.
func Decision(d workflow.Decision) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("decision", string(d))
	}
}

// Reviewer adds the reviewer identity.
func Reviewer(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("reviewer", name)
	}
}

// Valid adds a verification outcome.
func Valid(ok bool) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Bool("valid", ok)
	}
}

// Violations adds the number of verification violations.
func Violations(n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("violations", n)
	}
}

// Fallback adds the fallback reason.
func Fallback(r workflow.FallbackReason) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("fallback_reason", string(r))
	}
}

// Duration adds a duration field in milliseconds.
func Duration(d time.Duration) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("duration_ms", d.Milliseconds())
	}
}

// Cached adds a cached field.
func Cached(cached bool) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Bool("cached", cached)
	}
}

// ErrorField adds an error field.
func ErrorField(err error) Field {
	return func(e *bolt.Event) *bolt.Event {
		if err == nil {
			return e
		}
		return e.Err(err)
	}
}

// Reason adds a reason field.
func Reason(reason string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("reason", reason)
	}
}

// Component adds a component field for categorization.
func Component(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("component", name)
	}
}

// Operation adds an operation field.
func Operation(op string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("operation", op)
	}
}

// Str adds a string field with custom key.
func Str(key, value string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str(key, value)
	}
}

// Int adds an int field with custom key.
func Int(key string, value int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int(key, value)
	}
}
