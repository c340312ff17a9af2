package application

import (
	"context"

	"github.com/felixgeelhaar/robotflow/domain/policy"
	"github.com/felixgeelhaar/robotflow/domain/workflow"
	"github.com/felixgeelhaar/robotflow/infrastructure/logging"
)

// review blocks on the gate until the operator decides or the deadline
// passes. A reviewer that cannot be reached ends the run as a system error.
func (e *Engine) review(ctx context.Context, sc *scope) workflow.Event {
	run := sc.run
	started := e.now()
	run.Deadline = started.Add(e.gate.Timeout())
	sc.ledger.RecordReviewRequest(run.PlanAttempt, run.Deadline)

	logging.Info().
		Add(logging.CorrelationID(run.CorrelationID)).
		Add(logging.Attempt(run.PlanAttempt)).
		Add(logging.StepCount(len(run.Plan))).
		Add(logging.Duration(e.gate.Timeout())).
		Msg("awaiting human review")

	decision, err := e.gate.Await(ctx, policy.ReviewRequest{
		CorrelationID: run.CorrelationID,
		Command:       run.OperatorInput,
		Plan:          run.Plan,
		Attempt:       run.PlanAttempt,
		Deadline:      run.Deadline,
	})
	if err != nil {
		return e.fail(sc, "human review", err)
	}

	waited := e.now().Sub(started)
	run.Review = &decision
	sc.ledger.RecordReviewResult(decision, waited)
	e.metrics.RecordReviewWait(ctx, decision.Decision, waited)

	logging.Info().
		Add(logging.CorrelationID(run.CorrelationID)).
		Add(logging.Decision(decision.Decision)).
		Add(logging.Reviewer(decision.Reviewer)).
		Add(logging.Duration(waited)).
		Msg("review decided")
	return workflow.Reviewed(decision.Decision)
}
