package application

import (
	"context"

	"github.com/felixgeelhaar/robotflow/domain/sequence"
	"github.com/felixgeelhaar/robotflow/domain/workflow"
	"github.com/felixgeelhaar/robotflow/infrastructure/logging"
	"github.com/felixgeelhaar/robotflow/infrastructure/storage/filesystem"
)

// verify re-simulates the approved plan from the persisted robot state.
// A valid plan is rendered to the actions file and archived before it is
// handed to execution.
func (e *Engine) verify(ctx context.Context, sc *scope) workflow.Event {
	run := sc.run

	start, err := e.state.Get(ctx)
	if err != nil {
		return e.fail(sc, "load robot state", err)
	}
	res, err := e.verifier.Verify(ctx, run.Plan, start)
	if err != nil {
		return e.fail(sc, "verify plan", err)
	}

	run.Verification = &res
	sc.ledger.RecordVerification(res)
	e.metrics.RecordVerification(ctx, res)

	logging.Info().
		Add(logging.CorrelationID(run.CorrelationID)).
		Add(logging.Attempt(run.PlanAttempt)).
		Add(logging.Valid(res.Valid)).
		Add(logging.Violations(res.ViolationCount())).
		Msg("plan verified")

	if !res.Valid {
		sc.feedback = res.FeedbackText()
		run.ValidationErrors = appendLine(run.ValidationErrors, sc.feedback)
		return workflow.Verified(false)
	}

	if err := e.publishSequence(ctx, run); err != nil {
		return e.fail(sc, "write sequence", err)
	}
	return workflow.Verified(true)
}

// publishSequence writes the actions file and archives the document.
func (e *Engine) publishSequence(ctx context.Context, run *workflow.Run) error {
	if e.actionsFile == "" && e.archive == nil {
		return nil
	}

	doc := sequence.FromPlan(run.CorrelationID, run.OperatorInput, run.Plan)
	content, err := sequence.Render(doc, run.CorrelationID, run.OperatorInput, e.now())
	if err != nil {
		return err
	}

	if e.actionsFile != "" {
		if err := filesystem.WriteFileAtomic(e.actionsFile, content); err != nil {
			return err
		}
		logging.Info().
			Add(logging.CorrelationID(run.CorrelationID)).
			Add(logging.Str("file", e.actionsFile)).
			Msg("sequence written")
	}

	if e.archive != nil {
		location, err := e.archive.Put(ctx, run.CorrelationID, content)
		if err != nil {
			return err
		}
		logging.Debug().
			Add(logging.CorrelationID(run.CorrelationID)).
			Add(logging.Str("location", location)).
			Msg("sequence archived")
	}
	return nil
}
