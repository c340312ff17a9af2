package statemachine

import (
	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/robotflow/infrastructure/logging"
)

// logStateEntry logs when entering a state.
// Actions receive a pointer to the context, so **Context here.
func logStateEntry(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil || (*ctx).Run == nil {
		return
	}
	run := (*ctx).Run

	logging.Debug().
		Add(logging.CorrelationID(run.CorrelationID)).
		Add(logging.State(targetOf(event))).
		Add(logging.Attempt(run.PlanAttempt)).
		Msg("state entered")
}

// recordTransition records the transition in the ledger before the run
// moves.
func recordTransition(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil || (*ctx).Run == nil || (*ctx).Ledger == nil {
		return
	}
	c := *ctx

	payload, ok := event.Payload.(TransitionPayload)
	if !ok {
		return
	}
	c.Ledger.RecordTransition(c.Run.State, payload.Next.State, payload.Cause, payload.Next.Attempt)
}
