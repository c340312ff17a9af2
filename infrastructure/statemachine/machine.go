// Package statemachine provides the statekit integration for the workflow
// engine.
package statemachine

import (
	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/robotflow/domain/ledger"
	"github.com/felixgeelhaar/robotflow/domain/workflow"
)

// Context carries run state through the state machine.
type Context struct {
	Run    *workflow.Run
	Ledger *ledger.Ledger
}

// NewContext creates a new machine context.
func NewContext(run *workflow.Run, ledger *ledger.Ledger) *Context {
	return &Context{
		Run:    run,
		Ledger: ledger,
	}
}

// State IDs as StateID type for statekit.
const (
	stateRouter      statekit.StateID = statekit.StateID(workflow.StateRouter)
	statePlanning    statekit.StateID = statekit.StateID(workflow.StatePlanning)
	stateHumanReview statekit.StateID = statekit.StateID(workflow.StateHumanReview)
	stateVerify      statekit.StateID = statekit.StateID(workflow.StateVerify)
	stateExecute     statekit.StateID = statekit.StateID(workflow.StateExecute)
	stateQuestion    statekit.StateID = statekit.StateID(workflow.StateQuestion)
	stateFallback    statekit.StateID = statekit.StateID(workflow.StateFallback)
	stateTerminal    statekit.StateID = statekit.StateID(workflow.StateTerminal)
)

// machineID identifies the workflow chart in snapshots.
const machineID = "robotflow"

// NewWorkflowMachine creates the workflow statechart. Every edge carries
// the canTransition guard so the chart and workflow.CanTransition agree.
func NewWorkflowMachine() (*statekit.MachineConfig[*Context], error) {
	return statekit.NewMachine[*Context](machineID).
		WithInitial(stateRouter).
		WithContext(&Context{}).
		WithAction("logEntry", logStateEntry).
		WithAction("recordTransition", recordTransition).
		WithGuard("canTransition", guardCanTransition).
		WithGuard("withinBudget", guardWithinBudget).
		State(stateRouter).
			OnEntry("logEntry").
			On("PLAN").Target(statePlanning).Guard("canTransition").Do("recordTransition").
			On("REVIEW").Target(stateHumanReview).Guard("canTransition").Do("recordTransition").
			On("ASK").Target(stateQuestion).Guard("canTransition").Do("recordTransition").
			On("FALLBACK").Target(stateFallback).Do("recordTransition").
			Done().
		State(statePlanning).
			OnEntry("logEntry").
			On("REVIEW").Target(stateHumanReview).Guard("canTransition").Do("recordTransition").
			On("PLAN").Target(statePlanning).Guard("canTransition").Guard("withinBudget").Do("recordTransition").
			On("FALLBACK").Target(stateFallback).Do("recordTransition").
			Done().
		State(stateHumanReview).
			OnEntry("logEntry").
			On("VERIFY").Target(stateVerify).Guard("canTransition").Do("recordTransition").
			On("PLAN").Target(statePlanning).Guard("canTransition").Do("recordTransition").
			On("FALLBACK").Target(stateFallback).Do("recordTransition").
			Done().
		State(stateVerify).
			OnEntry("logEntry").
			On("EXECUTE").Target(stateExecute).Guard("canTransition").Do("recordTransition").
			On("PLAN").Target(statePlanning).Guard("canTransition").Guard("withinBudget").Do("recordTransition").
			On("FALLBACK").Target(stateFallback).Do("recordTransition").
			Done().
		State(stateExecute).
			OnEntry("logEntry").
			On("FINISH").Target(stateTerminal).Do("recordTransition").
			On("FALLBACK").Target(stateFallback).Do("recordTransition").
			Done().
		State(stateQuestion).
			OnEntry("logEntry").
			On("FINISH").Target(stateTerminal).Do("recordTransition").
			On("FALLBACK").Target(stateFallback).Do("recordTransition").
			Done().
		State(stateFallback).
			OnEntry("logEntry").
			On("FINISH").Target(stateTerminal).Do("recordTransition").
			Done().
		State(stateTerminal).
			Final().
			OnEntry("logEntry").
			Done().
		Build()
}

// EventForTransition returns the event type for a transition into to.
func EventForTransition(to workflow.State) statekit.EventType {
	switch to {
	case workflow.StatePlanning:
		return "PLAN"
	case workflow.StateHumanReview:
		return "REVIEW"
	case workflow.StateVerify:
		return "VERIFY"
	case workflow.StateExecute:
		return "EXECUTE"
	case workflow.StateQuestion:
		return "ASK"
	case workflow.StateFallback:
		return "FALLBACK"
	case workflow.StateTerminal:
		return "FINISH"
	default:
		return statekit.EventType(to)
	}
}

// StateFromMachine converts the machine state ID to domain State.
func StateFromMachine(stateID statekit.StateID) workflow.State {
	return workflow.State(stateID)
}
