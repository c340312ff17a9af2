package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/robotflow/domain/history"
	"github.com/felixgeelhaar/robotflow/domain/robot"
	"github.com/felixgeelhaar/robotflow/domain/workflow"
	"github.com/felixgeelhaar/robotflow/infrastructure/link"
	"github.com/felixgeelhaar/robotflow/infrastructure/logging"
)

// execute dispatches the verified plan one step at a time. Every step is
// recorded in history, and the robot state follows each completed step.
func (e *Engine) execute(ctx context.Context, sc *scope) workflow.Event {
	run := sc.run
	mode := e.link.Mode()

	unlock, err := e.lockCell(ctx)
	if err != nil {
		return e.fail(sc, "lock cell", err)
	}
	defer unlock()

	if err := e.history.CreateRun(ctx, history.Run{
		ID:            run.CorrelationID,
		OperatorInput: run.OperatorInput,
		Sequence:      run.Plan,
		Status:        history.RunPending,
		StartedAt:     e.now(),
	}); err != nil {
		return e.fail(sc, "create history run", err)
	}
	if err := e.history.SetRunStatus(ctx, run.CorrelationID, history.RunRunning); err != nil {
		return e.fail(sc, "start history run", err)
	}

	logging.Info().
		Add(logging.CorrelationID(run.CorrelationID)).
		Add(logging.Str("mode", mode)).
		Add(logging.StepCount(len(run.Plan))).
		Msg("execution started")

	started := e.now()
	err = e.dispatchAll(ctx, sc)
	elapsed := e.now().Sub(started)
	e.metrics.RecordExecution(ctx, mode, len(run.Plan), elapsed, err)

	status := history.RunCompleted
	if err != nil {
		status = history.RunFailed
	}
	// The outcome is recorded even when ctx was cancelled mid-plan.
	if serr := e.history.SetRunStatus(context.WithoutCancel(ctx), run.CorrelationID, status); serr != nil {
		err = errors.Join(err, serr)
	}
	if err != nil {
		return e.fail(sc, strings.ToLower(mode)+" execution", err)
	}

	if mode == link.ModeSocket {
		run.Response = fmt.Sprintf("Sequence executed via robot (%d steps)", len(run.Plan))
	} else {
		run.Response = fmt.Sprintf("Simulated successfully (%d steps)", len(run.Plan))
	}

	logging.Info().
		Add(logging.CorrelationID(run.CorrelationID)).
		Add(logging.Str("mode", mode)).
		Add(logging.Duration(elapsed)).
		Msg("execution completed")
	return workflow.Completed()
}

func (e *Engine) dispatchAll(ctx context.Context, sc *scope) error {
	state, err := e.state.Get(ctx)
	if err != nil {
		return err
	}
	for _, step := range sc.run.Plan {
		next, err := e.dispatch(ctx, sc, state, step)
		if err != nil {
			return fmt.Errorf("step %d (%s %s): %w", step.ID, step.Action, step.Target, err)
		}
		state = next
		if err := e.renewCell(ctx); err != nil {
			return fmt.Errorf("renew cell lock after step %d: %w", step.ID, err)
		}
	}
	return nil
}

// lockCell takes the cell lock for one execution and returns its release.
func (e *Engine) lockCell(ctx context.Context) (func(), error) {
	if e.cellLock == nil {
		return func() {}, nil
	}
	ok, err := e.cellLock.Acquire(ctx, e.cellKey, e.cellLockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCellBusy
	}
	return func() {
		if err := e.cellLock.Release(context.WithoutCancel(ctx), e.cellKey); err != nil {
			logging.Warn().
				Add(logging.Str("key", e.cellKey)).
				Add(logging.ErrorField(err)).
				Msg("failed to release cell lock")
		}
	}, nil
}

func (e *Engine) renewCell(ctx context.Context) error {
	if e.cellLock == nil {
		return nil
	}
	return e.cellLock.Extend(ctx, e.cellKey, e.cellLockTTL)
}

// dispatch runs one step and persists the state change it causes.
func (e *Engine) dispatch(ctx context.Context, sc *scope, state robot.State, step robot.Step) (robot.State, error) {
	runID := sc.run.CorrelationID
	stepID, err := e.history.AddStep(ctx, runID, step.Target, step.Action)
	if err != nil {
		return state, err
	}

	started := e.now()
	next, err := e.runStep(ctx, state, step)
	elapsed := e.now().Sub(started)
	sc.ledger.RecordStep(step, elapsed, err)

	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	if ferr := e.history.FinishStep(context.WithoutCancel(ctx), stepID, errMsg); ferr != nil && err == nil {
		err = ferr
	}

	event := logging.Debug()
	if err != nil {
		event = logging.Error().Add(logging.ErrorField(err))
	}
	event.
		Add(logging.CorrelationID(runID)).
		Add(logging.StepID(step.ID)).
		Add(logging.Str("action", string(step.Action))).
		Add(logging.Str("target", step.Target)).
		Add(logging.Duration(elapsed)).
		Msg("step dispatched")
	return next, err
}

func (e *Engine) runStep(ctx context.Context, state robot.State, step robot.Step) (robot.State, error) {
	next, err := robot.ApplyStep(state, step)
	if err != nil {
		return state, err
	}
	if _, err := e.link.Dispatch(ctx, step); err != nil {
		return state, err
	}
	if next.Position != state.Position {
		if err := e.state.SetPosition(ctx, next.Position); err != nil {
			return state, err
		}
	}
	if next.Tool != state.Tool {
		if err := e.state.SetTool(ctx, next.Tool); err != nil {
			return state, err
		}
	}
	return next, nil
}
