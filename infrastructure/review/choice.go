// Package review implements the human plan reviewers: an interactive
// terminal prompt and a Telegram chat.
package review

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/robotflow/domain/policy"
	"github.com/felixgeelhaar/robotflow/domain/workflow"
)

// Operator prompts shared by the reviewers.
const (
	PromptDecision = "Your decision [a/r/d]: "
	PromptChanges  = "What changes do you want? "
	InvalidChoice  = "Invalid choice. Please enter 'a', 'r', or 'd'."
	TimeoutNotice  = "Human review timeout exceeded. Routing to fallback."
)

// choice is one parsed operator answer. Comments is set when the revision
// request carried them inline ("r add a scan").
type choice struct {
	decision workflow.Decision
	comments string
}

// parseChoice accepts a, r, d and their long forms, case-insensitive.
func parseChoice(line string) (choice, bool) {
	line = strings.TrimSpace(line)
	word, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(word) {
	case "a", "approve", "approved", "yes", "y":
		return choice{decision: workflow.DecisionApproved}, true
	case "d", "decline", "declined", "no", "n":
		return choice{decision: workflow.DecisionDeclined}, true
	case "r", "revise", "revision":
		return choice{decision: workflow.DecisionRevision, comments: rest}, true
	}
	return choice{}, false
}

// planLines renders the plan steps as "  {id}. {name}".
func planLines(req policy.ReviewRequest) []string {
	lines := make([]string, 0, len(req.Plan))
	for _, s := range req.Plan {
		name := s.Name
		if name == "" {
			name = string(s.Action) + " " + s.Target
		}
		lines = append(lines, fmt.Sprintf("  %d. %s", s.ID, name))
	}
	return lines
}

// Summary renders a review request as plain text for chat channels.
func Summary(req policy.ReviewRequest) string {
	var b strings.Builder
	b.WriteString("PLAN REVIEW REQUIRED\n")
	fmt.Fprintf(&b, "Correlation ID: %s\n", req.CorrelationID)
	fmt.Fprintf(&b, "Your command: %s\n", req.Command)
	if req.Attempt > 1 {
		fmt.Fprintf(&b, "Attempt: %d\n", req.Attempt)
	}
	b.WriteString("\nGenerated Plan:\n")
	for _, line := range planLines(req) {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString("\nOptions:\n")
	b.WriteString("  [a] Approve - Execute this plan\n")
	b.WriteString("  [r] Revise - Request changes (provide comments)\n")
	b.WriteString("  [d] Decline - Cancel this task\n")
	if req.Timeout > 0 {
		fmt.Fprintf(&b, "Timeout: %d seconds\n", int(req.Timeout.Seconds()))
	}
	return b.String()
}
