// Package sequence defines the RobotSequence document handed to the robot
// controller once a plan has been verified.
package sequence

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/robotflow/domain/robot"
)

// Step is a plan step in document form. Field order is the key order of
// the emitted YAML.
type Step struct {
	ID          int      `yaml:"id"`
	Name        string   `yaml:"name"`
	Action      string   `yaml:"action"`
	Target      string   `yaml:"target"`
	Position    string   `yaml:"position,omitempty"`
	Tool        string   `yaml:"tool,omitempty"`
	Stabilize   *float64 `yaml:"stabilize,omitempty"`
	ActionAfter string   `yaml:"action_after,omitempty"`
	Verify      string   `yaml:"verify,omitempty"`
}

// Document is the RobotSequence body.
type Document struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Steps       []Step `yaml:"steps"`
}

type envelope struct {
	RobotSequence Document `yaml:"RobotSequence"`
}

// Name returns the sequence name for a run id.
func Name(runID string) string {
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	return "Sequence_" + short
}

// FromPlan converts a verified plan into a document.
func FromPlan(runID, description string, plan robot.Plan) Document {
	doc := Document{
		Name:        Name(runID),
		Description: description,
		Steps:       make([]Step, 0, len(plan)),
	}
	for _, s := range plan {
		step := Step{
			ID:          s.ID,
			Name:        s.Name,
			Action:      string(s.Action),
			Target:      s.Target,
			Position:    s.Position,
			Tool:        s.Tool,
			ActionAfter: s.ActionAfter,
			Verify:      s.Verify,
		}
		if s.Stabilize != nil {
			v := *s.Stabilize
			step.Stabilize = &v
		}
		doc.Steps = append(doc.Steps, step)
	}
	return doc
}

// Plan converts the document back into plan steps.
func (d Document) Plan() robot.Plan {
	plan := make(robot.Plan, 0, len(d.Steps))
	for _, s := range d.Steps {
		plan = append(plan, robot.Step{
			ID:          s.ID,
			Name:        s.Name,
			Action:      robot.Action(s.Action),
			Target:      s.Target,
			Position:    s.Position,
			Tool:        s.Tool,
			Stabilize:   s.Stabilize,
			ActionAfter: s.ActionAfter,
			Verify:      s.Verify,
		})
	}
	return plan
}

// Marshal renders the document under its RobotSequence key.
func Marshal(d Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(envelope{RobotSequence: d}); err != nil {
		return nil, fmt.Errorf("encode sequence: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode sequence: %w", err)
	}
	return buf.Bytes(), nil
}

// Parse reads a document, accepting both the wrapped and the bare form.
func Parse(data []byte) (Document, error) {
	var env envelope
	if err := yaml.Unmarshal(data, &env); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if len(env.RobotSequence.Steps) == 0 && env.RobotSequence.Name == "" {
		var bare Document
		if err := yaml.Unmarshal(data, &bare); err != nil {
			return Document{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		env.RobotSequence = bare
	}
	if err := env.RobotSequence.Plan().Validate(); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return env.RobotSequence, nil
}

const rule = "# ============================================================================"

// Header is the comment block written above the document in actions.yaml.
func Header(runID, command string, at time.Time) string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "# Run ID: %s\n", runID)
	fmt.Fprintf(&b, "# Command: \"%s\"\n", command)
	fmt.Fprintf(&b, "# Timestamp: %s\n", at.Format(time.DateTime))
	b.WriteString(rule + "\n\n")
	return b.String()
}

// Render returns the full actions.yaml content for a run.
func Render(d Document, runID, command string, at time.Time) ([]byte, error) {
	body, err := Marshal(d)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(body)+256)
	out = append(out, Header(runID, command, at)...)
	out = append(out, body...)
	out = append(out, "\n\n"...)
	return out, nil
}
