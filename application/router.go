package application

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/felixgeelhaar/robotflow/domain/history"
	"github.com/felixgeelhaar/robotflow/domain/knowledge"
	"github.com/felixgeelhaar/robotflow/domain/workflow"
	"github.com/felixgeelhaar/robotflow/infrastructure/llm"
	"github.com/felixgeelhaar/robotflow/infrastructure/logging"
)

// NoPreviousTask is the response to a replay phrase with no completed run.
const NoPreviousTask = "No previous tasks found to repeat. Please describe a new task."

var (
	runIDPattern  = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	countFollowUp = regexp.MustCompile(`(give|show)\s+me\s+\d+`)

	replayPhrases = []string{"do that again", "repeat last", "run the same", "do it again"}

	followUpPhrases = []string{
		"more information", "tell me more", "give me more", "what else",
		"more details", "explain more", "and what about", "what about",
		"the latest", "the last", "show me", "give me the", "give me",
	}
	questionWords = []string{"what", "where", "which", "how many", "list", "show", "tell me", "explain", "give me"}
	actionWords   = []string{"move", "go", "weld", "inspect", "attach", "pick", "release", "change"}
)

// route classifies the command. Replay requests are served from history
// and go straight to review with the stored plan.
func (e *Engine) route(ctx context.Context, sc *scope) workflow.Event {
	run := sc.run
	lower := strings.ToLower(run.OperatorInput)

	if id := runIDPattern.FindString(lower); id != "" {
		prior, err := e.history.Get(ctx, id)
		switch {
		case errors.Is(err, history.ErrRunNotFound) || (err == nil && prior.Status != history.RunCompleted):
			run.Response = fmt.Sprintf("Task %s... not found or not completed.", workflow.ShortID(id))
			return workflow.ReplayUnavailable(run.Response)
		case err != nil:
			return e.fail(sc, "load replay run", err)
		}
		return e.replay(sc, prior)
	}

	if containsAny(lower, replayPhrases) {
		prior, err := e.history.LatestCompleted(ctx)
		switch {
		case errors.Is(err, history.ErrRunNotFound):
			run.Response = NoPreviousTask
			return workflow.ReplayUnavailable(run.Response)
		case err != nil:
			return e.fail(sc, "load latest run", err)
		}
		return e.replay(sc, prior)
	}

	run.Intent = e.classify(ctx, sc)
	logging.Info().
		Add(logging.CorrelationID(run.CorrelationID)).
		Add(logging.Intent(run.Intent)).
		Msg("command routed")
	return workflow.Classified(run.Intent, false)
}

func (e *Engine) replay(sc *scope, prior history.Run) workflow.Event {
	run := sc.run
	if prior.Sequence.IsEmpty() {
		run.Response = fmt.Sprintf("Task %s... not found or not completed.", workflow.ShortID(prior.ID))
		return workflow.ReplayUnavailable(run.Response)
	}

	run.OperatorInput = "Replay task: " + prior.OperatorInput
	run.Plan = prior.Sequence
	run.ReplayOf = prior.ID
	run.Intent = workflow.IntentAction

	logging.Info().
		Add(logging.CorrelationID(run.CorrelationID)).
		Add(logging.Str("replay_of", prior.ID)).
		Add(logging.StepCount(len(prior.Sequence))).
		Msg("replaying completed run")
	return workflow.Classified(workflow.IntentAction, true)
}

// classify asks the model first and falls back to keywords when it is
// unavailable or answers with something unusable.
func (e *Engine) classify(ctx context.Context, sc *scope) workflow.IntentClass {
	if e.classifier != nil {
		snap, err := knowledge.LoadSnapshot(ctx, e.knowledge)
		if err == nil {
			var cls llm.Classification
			cls, err = e.classifier.Classify(ctx, llm.ClassifyRequest{
				CorrelationID: sc.run.CorrelationID,
				Command:       sc.run.OperatorInput,
				Knowledge:     snap,
			})
			if err == nil {
				return cls.Intent
			}
		}
		logging.Warn().
			Add(logging.CorrelationID(sc.run.CorrelationID)).
			Add(logging.ErrorField(err)).
			Msg("classifier unavailable, using keywords")
	}
	return ClassifyKeywords(sc.run.OperatorInput)
}

// ClassifyKeywords is the rule based classifier. Follow-up phrasing wins
// over action words so "show me the last move" is a question.
func ClassifyKeywords(input string) workflow.IntentClass {
	lower := strings.ToLower(input)
	switch {
	case containsAny(lower, followUpPhrases), countFollowUp.MatchString(lower):
		return workflow.IntentQuestion
	case containsAny(lower, questionWords):
		return workflow.IntentQuestion
	case containsAny(lower, actionWords):
		return workflow.IntentAction
	default:
		return workflow.IntentUnknown
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
