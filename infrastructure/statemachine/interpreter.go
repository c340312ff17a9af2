package statemachine

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/robotflow/domain/workflow"
)

// TransitionPayload carries the computed transition with the event.
type TransitionPayload struct {
	Next  workflow.Next
	Cause workflow.EventType
}

// Interpreter wraps the statekit interpreter with workflow-specific
// functionality.
type Interpreter struct {
	interp *statekit.Interpreter[*Context]
	ctx    *Context
}

// NewInterpreter creates a new interpreter for the workflow machine.
func NewInterpreter(machine *statekit.MachineConfig[*Context], ctx *Context) *Interpreter {
	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(c **Context) {
		*c = ctx
	})
	return &Interpreter{
		interp: interp,
		ctx:    ctx,
	}
}

// Start enters the initial state.
func (i *Interpreter) Start() {
	i.interp.Start()
	i.ctx.Run.State = workflow.State(i.interp.State().Value)
}

// Stop stops the interpreter.
func (i *Interpreter) Stop() {
	i.interp.Stop()
}

// State returns the current state.
func (i *Interpreter) State() workflow.State {
	return workflow.State(i.interp.State().Value)
}

// Fire computes the transition for ev with the pure workflow function,
// drives the chart along it and applies the result to the run.
func (i *Interpreter) Fire(ev workflow.Event) (workflow.Next, error) {
	run := i.ctx.Run
	next, err := workflow.Transition(run.State, ev, run.PlanAttempt, run.MaxAttempts)
	if err != nil {
		return next, err
	}

	i.interp.Send(statekit.Event{
		Type:    EventForTransition(next.State),
		Payload: TransitionPayload{Next: next, Cause: ev.Type},
	})

	if got := i.State(); got != next.State {
		return next, fmt.Errorf("%w: chart stayed in %s, expected %s", workflow.ErrInvalidTransition, got, next.State)
	}
	run.Apply(next)
	return next, nil
}

// CanTransition checks if a transition to the target state is possible.
func (i *Interpreter) CanTransition(to workflow.State) bool {
	return workflow.CanTransition(i.ctx.Run.State, to)
}

// IsTerminal returns true if the interpreter is in a final state.
func (i *Interpreter) IsTerminal() bool {
	return i.interp.Done()
}

// Context returns the interpreter context.
func (i *Interpreter) Context() *Context {
	return i.ctx
}

// Matches checks if the current state matches the given state.
func (i *Interpreter) Matches(state workflow.State) bool {
	return i.interp.Matches(statekit.StateID(state))
}
