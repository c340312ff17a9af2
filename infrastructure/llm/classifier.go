package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/felixgeelhaar/robotflow/domain/knowledge"
	"github.com/felixgeelhaar/robotflow/domain/workflow"
	"github.com/felixgeelhaar/robotflow/infrastructure/logging"
)

// ClassifyRequest is a command to classify.
type ClassifyRequest struct {
	CorrelationID string
	Command       string
	Knowledge     knowledge.Snapshot
}

// Classification is the router's view of a command.
type Classification struct {
	Intent    workflow.IntentClass `json:"intent"`
	Reasoning string               `json:"reasoning"`
}

// Classifier decides whether a command is an action, a question or
// neither.
type Classifier interface {
	Classify(ctx context.Context, req ClassifyRequest) (Classification, error)
}

// IntentClassifier classifies commands with the model.
type IntentClassifier struct {
	client *Client
}

// NewIntentClassifier creates a model-backed classifier.
func NewIntentClassifier(client *Client) *IntentClassifier {
	return &IntentClassifier{client: client}
}

// Classify implements Classifier. Unparseable replies return
// ErrInvalidResponse.
func (c *IntentClassifier) Classify(ctx context.Context, req ClassifyRequest) (Classification, error) {
	reply, err := c.client.Generate(ctx, req.CorrelationID, BuildClassifyPrompt(req),
		llms.WithTemperature(0.0), llms.WithMaxTokens(150))
	if err != nil {
		return Classification{}, err
	}

	var out struct {
		Intent    string `json:"intent"`
		Reasoning string `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(ExtractJSON(reply)), &out); err != nil || out.Intent == "" {
		return Classification{}, fmt.Errorf("%w: %s", ErrInvalidResponse, truncate(reply, 200))
	}

	cls := Classification{Intent: workflow.ParseIntentClass(out.Intent), Reasoning: out.Reasoning}
	logging.Info().
		Add(logging.CorrelationID(req.CorrelationID)).
		Add(logging.Intent(cls.Intent)).
		Add(logging.Reason(cls.Reasoning)).
		Msg("command classified")
	return cls, nil
}

// Capabilities summarises the graph for the classifier prompt.
func Capabilities(snap knowledge.Snapshot) string {
	routines := make([]string, len(snap.Routines))
	for i, r := range snap.Routines {
		routines[i] = r.Name
	}
	tools := make([]string, len(snap.Tools))
	for i, t := range snap.Tools {
		tools[i] = t.Name
	}
	return fmt.Sprintf("Available routines: %s\nAvailable tools: %s\nAvailable positions: %s",
		strings.Join(routines, ", "), strings.Join(tools, ", "), strings.Join(snap.PositionNames(), ", "))
}

// BuildClassifyPrompt renders the classification prompt.
func BuildClassifyPrompt(req ClassifyRequest) string {
	var sb strings.Builder
	sb.WriteString("You are an intent classifier for a context-aware robot control system.\n\n")
	sb.WriteString("SYSTEM CAPABILITIES:\n")
	sb.WriteString(Capabilities(req.Knowledge))
	sb.WriteString("\n\n")
	sb.WriteString(classifyInstructions)
	fmt.Fprintf(&sb, "\nOPERATOR INPUT: %q\n\n", req.Command)
	sb.WriteString("Respond with ONLY a JSON object in this exact format:\n")
	sb.WriteString("{\n  \"intent\": \"action|question|unknown\",\n  \"reasoning\": \"Brief explanation\"\n}\n\n")
	sb.WriteString("Do NOT include any other text, commentary, or markdown formatting.")
	return sb.String()
}

const classifyInstructions = `Classify the operator's input into ONE of these intents:
1. "action" - commands that require robot movement, tool operations or routine execution.
   Examples: "Move to station 5", "Can you scan checkpoint 3?", "Do that again", "proceed", "go ahead".
2. "question" - queries about system state, capabilities or history. No action is requested.
   Examples: "What stations are available?", "Where is the robot?", "Show me the history", "give me the 15 latest".
3. "unknown" - only for unclear or out-of-scope requests.
   Examples: "Hello", "What's the weather?", "asdfgh".

"Can you do X?" or "Do X again" is an ACTION. "What is X?" or "Show me X" is a QUESTION.
`
