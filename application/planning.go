package application

import (
	"context"
	"errors"
	"strings"

	"github.com/felixgeelhaar/robotflow/domain/history"
	"github.com/felixgeelhaar/robotflow/domain/knowledge"
	"github.com/felixgeelhaar/robotflow/domain/planning"
	"github.com/felixgeelhaar/robotflow/domain/robot"
	"github.com/felixgeelhaar/robotflow/domain/workflow"
	"github.com/felixgeelhaar/robotflow/infrastructure/llm"
	"github.com/felixgeelhaar/robotflow/infrastructure/logging"
)

// NotUnderstood is the attempt feedback when no intent could be extracted.
const NotUnderstood = "Could not understand operator command. Please rephrase."

// plan extracts an intent and expands it into a plan. Extraction and
// build failures consume an attempt; collaborator outages end the run.
func (e *Engine) plan(ctx context.Context, sc *scope) workflow.Event {
	run := sc.run

	snap, err := knowledge.LoadSnapshot(ctx, e.knowledge)
	if err != nil {
		return e.fail(sc, "load knowledge", err)
	}
	start, err := e.state.Get(ctx)
	if err != nil {
		return e.fail(sc, "load robot state", err)
	}

	req := llm.ExtractRequest{
		CorrelationID: run.CorrelationID,
		Command:       run.OperatorInput,
		Knowledge:     snap,
		State:         start,
		Revision:      run.Revision(),
		Feedback:      sc.feedback,
	}
	if last, err := e.history.LatestCompleted(ctx); err == nil {
		req.LastRun = &last
	} else if !errors.Is(err, history.ErrRunNotFound) {
		return e.fail(sc, "load last run", err)
	}

	logging.Info().
		Add(logging.CorrelationID(run.CorrelationID)).
		Add(logging.Attempt(run.PlanAttempt)).
		Add(logging.Str("revision", req.Revision)).
		Msg("planning")

	intent, err := e.extractor.Extract(ctx, req)
	switch {
	case errors.Is(err, llm.ErrInvalidResponse),
		errors.Is(err, robot.ErrInvalidIntent),
		errors.Is(err, robot.ErrUnknownGoal):
		return e.planFailed(ctx, sc, planning.Describe(err))
	case err != nil:
		return e.fail(sc, "extract intent", err)
	case intent == nil:
		return e.planFailed(ctx, sc, NotUnderstood)
	}

	plan, err := e.builder.Build(ctx, intent, start)
	if err != nil {
		return e.planFailed(ctx, sc, planning.Describe(err))
	}
	if plan.IsEmpty() {
		return e.planFailed(ctx, sc, planning.Describe(errors.New("empty plan")))
	}

	run.Plan = plan
	sc.feedback = ""
	sc.ledger.RecordPlanBuilt(run.PlanAttempt, plan)
	e.metrics.RecordPlanAttempt(ctx, run.PlanAttempt, true)

	logging.Info().
		Add(logging.CorrelationID(run.CorrelationID)).
		Add(logging.Attempt(run.PlanAttempt)).
		Add(logging.StepCount(len(plan))).
		Msg("plan built")
	return workflow.PlanBuilt()
}

// planFailed records reason as the feedback of the next attempt.
func (e *Engine) planFailed(ctx context.Context, sc *scope, reason string) workflow.Event {
	run := sc.run
	run.Plan = nil
	sc.feedback = reason
	run.ValidationErrors = appendLine(run.ValidationErrors, reason)
	sc.ledger.RecordPlanFailed(run.PlanAttempt, reason)
	e.metrics.RecordPlanAttempt(ctx, run.PlanAttempt, false)

	logging.Warn().
		Add(logging.CorrelationID(run.CorrelationID)).
		Add(logging.Attempt(run.PlanAttempt)).
		Add(logging.Reason(reason)).
		Msg("plan failed")
	return workflow.PlanFailed(reason)
}

func appendLine(acc, line string) string {
	line = strings.TrimSpace(line)
	if acc == "" {
		return line
	}
	return acc + "\n" + line
}
