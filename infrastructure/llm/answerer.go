package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/felixgeelhaar/robotflow/domain/history"
	"github.com/felixgeelhaar/robotflow/domain/knowledge"
	"github.com/felixgeelhaar/robotflow/domain/robot"
)

// QuestionRequest is an information query with the context to answer it.
type QuestionRequest struct {
	CorrelationID string
	Question      string
	Knowledge     knowledge.Snapshot
	State         robot.State
	Recent        []history.Run
}

// Answerer answers operator questions in natural language.
type Answerer interface {
	Answer(ctx context.Context, req QuestionRequest) (string, error)
}

// QuestionAnswerer answers with the model.
type QuestionAnswerer struct {
	client *Client
}

// NewQuestionAnswerer creates a model-backed answerer.
func NewQuestionAnswerer(client *Client) *QuestionAnswerer {
	return &QuestionAnswerer{client: client}
}

// Answer implements Answerer.
func (a *QuestionAnswerer) Answer(ctx context.Context, req QuestionRequest) (string, error) {
	answer, err := a.client.Generate(ctx, req.CorrelationID, BuildQuestionPrompt(req),
		llms.WithTemperature(0.3), llms.WithMaxTokens(800))
	if err != nil {
		return "", err
	}
	if answer == "" {
		return "", ErrEmptyResponse
	}
	return answer, nil
}

// KnowledgeContext renders the graph, the robot state and recent runs.
func KnowledgeContext(snap knowledge.Snapshot, state robot.State, recent []history.Run) string {
	var sb strings.Builder
	sb.WriteString(snap.Describe())

	sb.WriteString("\n\nCURRENT ROBOT STATE:\n")
	fmt.Fprintf(&sb, "  - Position: %s\n", state.Position)
	fmt.Fprintf(&sb, "  - Tool: %s\n", state.Tool)
	fmt.Fprintf(&sb, "  - Last updated: %s", state.LastUpdated.Format("2006-01-02 15:04:05"))

	if len(recent) > 0 {
		sb.WriteString("\n\nRECENT TASK HISTORY:")
		for _, r := range recent {
			fmt.Fprintf(&sb, "\n  - %s: %q -> %s", r.ID, r.OperatorInput, r.Status)
		}
	}
	return sb.String()
}

// BuildQuestionPrompt renders the question answering prompt.
func BuildQuestionPrompt(req QuestionRequest) string {
	var sb strings.Builder
	sb.WriteString("You are a helpful assistant for a context-aware robot control system.\n\n")
	sb.WriteString("SYSTEM KNOWLEDGE:\n")
	sb.WriteString(KnowledgeContext(req.Knowledge, req.State, req.Recent))
	fmt.Fprintf(&sb, "\n\nOPERATOR QUESTION:\n%q\n\n", req.Question)
	sb.WriteString(answerGuidelines)
	return sb.String()
}

const answerGuidelines = `Provide a clear, concise answer using the system knowledge above.

Guidelines:
- Answer in natural language, not JSON.
- List positions, tools and routines clearly, as bullet points indented with "  - ".
- For the current state, give the current position and tool.
- For history, respect the requested quantity up to the available data. Without a number, summarise 5-10 recent runs.
- "latest", "more" or "the rest" without a subject refers to task history.
- Do not show run ids. Describe tasks in plain language.
- Treat "points" and "spots" as positions.
- If the question cannot be answered, explain what you CAN help with.
- Do not ask follow-up questions such as "Would you like me to proceed?". This is information only.

Respond with ONLY your answer.`
