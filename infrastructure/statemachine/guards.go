package statemachine

import (
	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/robotflow/domain/workflow"
)

// guardCanTransition checks the edge against the workflow transition table.
// Guards receive the context by value; our context is *Context.
func guardCanTransition(ctx *Context, event statekit.Event) bool {
	if ctx == nil || ctx.Run == nil {
		return false
	}
	return workflow.CanTransition(ctx.Run.State, targetOf(event))
}

// guardWithinBudget blocks a retry that would exceed the attempt budget.
func guardWithinBudget(ctx *Context, event statekit.Event) bool {
	if ctx == nil || ctx.Run == nil {
		return false
	}
	payload, ok := event.Payload.(TransitionPayload)
	if !ok {
		return ctx.Run.PlanAttempt <= ctx.Run.MaxAttempts
	}
	return payload.Next.Attempt <= ctx.Run.MaxAttempts
}

// targetOf returns the target state carried by the event.
func targetOf(event statekit.Event) workflow.State {
	if payload, ok := event.Payload.(TransitionPayload); ok {
		return payload.Next.State
	}
	return stateFromEventType(event.Type)
}

// stateFromEventType derives the target state from an event type.
func stateFromEventType(eventType statekit.EventType) workflow.State {
	switch eventType {
	case "PLAN":
		return workflow.StatePlanning
	case "REVIEW":
		return workflow.StateHumanReview
	case "VERIFY":
		return workflow.StateVerify
	case "EXECUTE":
		return workflow.StateExecute
	case "ASK":
		return workflow.StateQuestion
	case "FALLBACK":
		return workflow.StateFallback
	case "FINISH":
		return workflow.StateTerminal
	default:
		return workflow.State(eventType)
	}
}
