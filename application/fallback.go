package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/robotflow/domain/verification"
	"github.com/felixgeelhaar/robotflow/domain/workflow"
	"github.com/felixgeelhaar/robotflow/infrastructure/logging"
)

// Fixed fallback responses.
const (
	DeclinedResponse = "Task cancelled by operator."
	TimeoutResponse  = "Task timed out waiting for approval."
)

// fallback composes the operator response for a run that could not
// complete. Template selection is deterministic.
func (e *Engine) fallback(_ context.Context, sc *scope) workflow.Event {
	run := sc.run
	run.Response = ComposeFallback(run)
	sc.ledger.RecordFallback(run.Fallback, run.Response)

	event := logging.Warn()
	if run.Fallback == workflow.ReasonSystemError {
		event = logging.Error().Add(logging.Str("error", run.Error))
	}
	event.
		Add(logging.CorrelationID(run.CorrelationID)).
		Add(logging.Fallback(run.Fallback)).
		Add(logging.Intent(run.Intent)).
		Add(logging.Attempt(run.PlanAttempt)).
		Msg("fallback triggered")
	return workflow.Completed()
}

// ComposeFallback returns the response for run's fallback reason.
func ComposeFallback(run *workflow.Run) string {
	switch run.Fallback {
	case workflow.ReasonUnknownIntent:
		return unknownIntentResponse(run.OperatorInput)
	case workflow.ReasonAttemptsExhausted:
		return exhaustedResponse(run)
	case workflow.ReasonDeclined:
		return DeclinedResponse
	case workflow.ReasonTimeout:
		return TimeoutResponse
	case workflow.ReasonReplayUnavailable:
		if run.Response != "" {
			return run.Response
		}
		return NoPreviousTask
	default:
		return systemErrorResponse(run.CorrelationID)
	}
}

func unknownIntentResponse(input string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I couldn't understand your request: '%s'\n\n", input)
	b.WriteString("I can help with:\n")
	b.WriteString("  - Robot movement commands (e.g., 'Move to position y')\n")
	b.WriteString("  - Routine execution (e.g., 'Do routine x at position y')\n")
	b.WriteString("  - Tool changes (e.g., 'Attach tool xyxyxy')\n")
	b.WriteString("  - Information queries (e.g., 'What positions are available?')\n")
	b.WriteString("  - Task replay (e.g., 'Do that again')\n\n")
	b.WriteString("Please rephrase your command or ask a question.")
	return b.String()
}

func exhaustedResponse(run *workflow.Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Failed to generate a valid plan after %d attempts.\n\n", run.MaxAttempts)

	if run.ValidationErrors != "" {
		fmt.Fprintf(&b, "Schema validation errors:\n%s\n\n", run.ValidationErrors)
	}

	if v := run.Verification; v != nil && !v.Valid {
		b.WriteString("Verification failures:\n")
		if len(v.MissingPositions) > 0 {
			fmt.Fprintf(&b, "  - Missing positions: %s\n", strings.Join(v.MissingPositions, ", "))
		}
		if len(v.IllegalEdges) > 0 {
			fmt.Fprintf(&b, "  - Illegal moves: %s\n", joinStringers(v.IllegalEdges))
		}
		if len(v.UnsupportedRoutines) > 0 {
			fmt.Fprintf(&b, "  - Unsupported routines: %s\n", joinStringers(v.UnsupportedRoutines))
		}
		if len(v.ToolConflicts) > 0 {
			fmt.Fprintf(&b, "  - Tool conflicts: %s\n", strings.Join(v.ToolConflicts, "; "))
		}
		b.WriteString("\n")
	}

	b.WriteString("Suggestions:\n")
	b.WriteString("  - Simplify your command (e.g., 'Move to <position_name>')\n")
	b.WriteString("  - Check available positions with 'What positions are available?'\n")
	b.WriteString("  - Ensure you're requesting valid position-to-position moves\n")
	return b.String()
}

func systemErrorResponse(correlationID string) string {
	return "An unexpected error occurred while processing your request.\n\n" +
		fmt.Sprintf("Correlation ID: %s\n", correlationID) +
		"Please try again or contact system administrator if the problem persists."
}

func joinStringers[T verification.Edge | verification.RoutineAt](items []T) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprint(item))
	}
	return strings.Join(parts, ", ")
}
