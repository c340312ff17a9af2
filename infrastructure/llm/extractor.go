package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/felixgeelhaar/robotflow/domain/history"
	"github.com/felixgeelhaar/robotflow/domain/knowledge"
	"github.com/felixgeelhaar/robotflow/domain/robot"
	"github.com/felixgeelhaar/robotflow/infrastructure/logging"
)

// ExtractRequest is everything the extractor may use to interpret a
// command.
type ExtractRequest struct {
	CorrelationID string
	Command       string
	Knowledge     knowledge.Snapshot
	State         robot.State

	// LastRun is the most recent completed run, used for "again" phrasing.
	LastRun *history.Run

	// Revision carries the operator's review comments.
	Revision string

	// Feedback carries the build error or verifier feedback of the
	// previous attempt.
	Feedback string
}

// Extractor turns an operator command into a structured intent. A nil
// intent with a nil error means the command was not understood.
type Extractor interface {
	Extract(ctx context.Context, req ExtractRequest) (robot.Intent, error)
}

// IntentExtractor asks the model for the intent JSON.
type IntentExtractor struct {
	client *Client
}

// NewIntentExtractor creates a model-backed extractor.
func NewIntentExtractor(client *Client) *IntentExtractor {
	return &IntentExtractor{client: client}
}

// Extract implements Extractor. Replies without a JSON object are treated
// as unknown; well-formed JSON with a bad shape is returned as an error so
// the caller can replan with the message.
func (e *IntentExtractor) Extract(ctx context.Context, req ExtractRequest) (robot.Intent, error) {
	reply, err := e.client.Generate(ctx, req.CorrelationID, BuildIntentPrompt(req), llms.WithTemperature(0.1))
	if err != nil {
		return nil, err
	}
	return decodeIntent(req.CorrelationID, reply)
}

func decodeIntent(correlationID, reply string) (robot.Intent, error) {
	raw := ExtractJSON(reply)
	if raw == "{}" || !json.Valid([]byte(raw)) {
		logging.Warn().
			Add(logging.CorrelationID(correlationID)).
			Add(logging.Str("raw_response", truncate(reply, 200))).
			Msg("intent reply is not JSON, treating as unknown")
		return nil, nil
	}
	intent, err := robot.ParseIntent([]byte(raw))
	if err != nil {
		return nil, err
	}
	if intent != nil {
		logging.Info().
			Add(logging.CorrelationID(correlationID)).
			Add(logging.Str("goal", string(intent.Goal()))).
			Msg("intent parsed")
	}
	return intent, nil
}

// StructuredExtractor accepts commands that already are intent JSON. It
// serves deployments without a model and the plan command.
type StructuredExtractor struct{}

// Extract implements Extractor.
func (StructuredExtractor) Extract(_ context.Context, req ExtractRequest) (robot.Intent, error) {
	return decodeIntent(req.CorrelationID, req.Command)
}

type promptPosition struct {
	Name string     `json:"name"`
	Role robot.Role `json:"role"`
}

type promptTool struct {
	Name string `json:"name"`
}

type promptRoutine struct {
	Name         string `json:"name"`
	RequiredTool string `json:"required_tool"`
}

// BuildIntentPrompt renders the extraction prompt.
func BuildIntentPrompt(req ExtractRequest) string {
	positions := make([]promptPosition, len(req.Knowledge.Positions))
	for i, p := range req.Knowledge.Positions {
		positions[i] = promptPosition{Name: p.Name, Role: p.Role}
	}
	tools := make([]promptTool, len(req.Knowledge.Tools))
	for i, t := range req.Knowledge.Tools {
		tools[i] = promptTool{Name: t.Name}
	}
	routines := make([]promptRoutine, len(req.Knowledge.Routines))
	for i, r := range req.Knowledge.Routines {
		routines[i] = promptRoutine{Name: r.Name, RequiredTool: r.Required()}
	}

	var sb strings.Builder
	sb.WriteString("You are an intent parser for a robot system. Convert the operator's command into a structured intent.\n\n")

	sb.WriteString("**Current Robot State:**\n")
	fmt.Fprintf(&sb, "- Position: %s\n", req.State.Position)
	fmt.Fprintf(&sb, "- Tool: %s\n\n", req.State.Tool)

	sb.WriteString("**Available Positions:**\n")
	sb.WriteString(indentJSON(positions))
	sb.WriteString("\n\n**Available Tools:**\n")
	sb.WriteString(indentJSON(tools))
	sb.WriteString("\n\n**Available Routines:**\n")
	sb.WriteString(indentJSON(routines))
	sb.WriteString("\n")

	if req.LastRun != nil {
		sb.WriteString("\n**Last Completed Task:**\n")
		fmt.Fprintf(&sb, "Command: %q\n", req.LastRun.OperatorInput)
		fmt.Fprintf(&sb, "Run ID: %s\n\n", req.LastRun.ID)
		sb.WriteString("NOTE: If the operator says \"again\", \"repeat\" or \"do it again\", parse it as the SAME intent as the last completed task above.\n")
	}

	fmt.Fprintf(&sb, "\n**Operator Command:** %s\n\n", req.Command)

	sb.WriteString("**How to handle \"full\" or \"all\":**\n")
	sb.WriteString("When the operator says \"full\" or \"all\" (e.g. \"do a full scan\", \"process all stations\"), create one step for EVERY work position listed above. Do NOT pick just one position.\n")

	if req.Revision != "" {
		sb.WriteString("\n**CRITICAL - Human Revision Request:**\n")
		sb.WriteString("The operator reviewed your previous plan and wants changes.\n\n")
		fmt.Fprintf(&sb, "Original command: %q\n", req.Command)
		fmt.Fprintf(&sb, "Human feedback: %q\n\n", req.Revision)
		sb.WriteString("Re-parse the ORIGINAL command and APPLY the feedback. The feedback modifies the original command, it does not replace it.\n")
	}

	if req.Feedback != "" {
		sb.WriteString("\n**IMPORTANT - Previous Planning Error:**\n")
		sb.WriteString("The last attempt to build a plan failed with this error:\n")
		fmt.Fprintf(&sb, "%q\n\n", req.Feedback)
		sb.WriteString("Adjust your intent to avoid this error. Use only position, tool and routine names from the lists above.\n")
	}

	sb.WriteString(intentRules)
	return sb.String()
}

const intentRules = `
**Rules:**
1. DO NOT add tool operations unless the operator explicitly asks for them. Tool changes for routines are inserted automatically.
   "visit all positions" and "go to position 1" are movement only.
2. If a position is named, limit the intent to that position.
3. If several positions are listed, limit the intent to those positions.
4. "full" or "all" applies to every work position.
5. With no position and no "full"/"all", return {"goal": "unknown"}.

**Intent formats:**
{"goal": "move", "position": "<position>"}
{"goal": "execute_routine", "routine": "<routine>", "position": "<position>"}
{"goal": "attach_tool", "tool": "<tool>"}
{"goal": "release_tool"}
{"goal": "release_tool_and_home"}
{"goal": "sequence", "steps": [
  {"action": "move", "position": "<position>"},
  {"action": "routine", "routine": "<routine>", "position": "<position>"},
  {"action": "release_tool_and_home"}
]}
{"goal": "unknown"}

Return JSON only:`

func indentJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(data)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
