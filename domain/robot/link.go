package robot

import (
	"context"
	"errors"
)

// Link dispatches plan steps to a robot controller, one at a time.
type Link interface {
	// Dispatch sends one step and returns the controller's reply.
	Dispatch(ctx context.Context, step Step) (string, error)

	// Mode names the link for responses and logs.
	Mode() string
}

// ErrShutdown indicates the controller asked to stop the sequence.
var ErrShutdown = errors.New("robot controller shutting down")

// ApplyStep returns the state after step ran on a robot in s. It fails
// for a tool attach step that does not name its tool.
func ApplyStep(s State, step Step) (State, error) {
	switch {
	case step.Action == ActionMove:
		s.Position = step.Target
	case step.IsToolAttach():
		if step.Tool == "" {
			return s, ErrMissingTool
		}
		s.Tool = step.Tool
	case step.IsToolRelease():
		s.Tool = NoTool
	}
	return s, nil
}
