package application

import (
	"context"

	"github.com/felixgeelhaar/robotflow/domain/history"
	"github.com/felixgeelhaar/robotflow/domain/knowledge"
	"github.com/felixgeelhaar/robotflow/domain/workflow"
	"github.com/felixgeelhaar/robotflow/infrastructure/llm"
	"github.com/felixgeelhaar/robotflow/infrastructure/logging"
)

// QuestionTrouble is the answer given when the answerer fails.
const QuestionTrouble = "I'm having trouble processing your question right now. " +
	"Please try asking about available positions, tools, routines, or current robot status."

// recentRunLimit caps the history passed to the answerer.
const recentRunLimit = 15

// answer responds to an information query from the graph, the robot
// state and today's runs (yesterday's when today has none).
func (e *Engine) answer(ctx context.Context, sc *scope) workflow.Event {
	run := sc.run

	req, err := e.questionContext(ctx, sc)
	if err != nil {
		logging.Warn().
			Add(logging.CorrelationID(run.CorrelationID)).
			Add(logging.ErrorField(err)).
			Msg("question context unavailable")
		run.Response = QuestionTrouble
		return workflow.Completed()
	}

	if e.answerer == nil {
		run.Response = llm.KnowledgeContext(req.Knowledge, req.State, req.Recent)
		return workflow.Completed()
	}

	text, err := e.answerer.Answer(ctx, req)
	if err != nil || text == "" {
		logging.Warn().
			Add(logging.CorrelationID(run.CorrelationID)).
			Add(logging.ErrorField(err)).
			Msg("answerer failed")
		run.Response = QuestionTrouble
		return workflow.Completed()
	}

	run.Response = text
	logging.Info().
		Add(logging.CorrelationID(run.CorrelationID)).
		Add(logging.Int("recent_runs", len(req.Recent))).
		Msg("question answered")
	return workflow.Completed()
}

func (e *Engine) questionContext(ctx context.Context, sc *scope) (llm.QuestionRequest, error) {
	snap, err := knowledge.LoadSnapshot(ctx, e.knowledge)
	if err != nil {
		return llm.QuestionRequest{}, err
	}
	state, err := e.state.Get(ctx)
	if err != nil {
		return llm.QuestionRequest{}, err
	}

	today := e.now()
	filter := history.OnDate(today)
	filter.Limit = recentRunLimit
	recent, err := e.history.List(ctx, filter)
	if err != nil {
		return llm.QuestionRequest{}, err
	}
	if len(recent) == 0 {
		filter = history.OnDate(today.AddDate(0, 0, -1))
		filter.Limit = recentRunLimit
		if recent, err = e.history.List(ctx, filter); err != nil {
			return llm.QuestionRequest{}, err
		}
	}

	return llm.QuestionRequest{
		CorrelationID: sc.run.CorrelationID,
		Question:      sc.run.OperatorInput,
		Knowledge:     snap,
		State:         state,
		Recent:        recent,
	}, nil
}
