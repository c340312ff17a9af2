// Package link provides the robot links that execute plan steps: a paced
// simulator and a TCP socket link to a robot controller.
package link

import (
	"context"
	"time"

	"github.com/felixgeelhaar/robotflow/domain/robot"
	"github.com/felixgeelhaar/robotflow/infrastructure/logging"
)

// Mode names.
const (
	ModeSimulation = "simulation"
	ModeSocket     = "socket"
)

// DefaultStepDelay paces simulated steps.
const DefaultStepDelay = 500 * time.Millisecond

// Simulator acknowledges every step after a fixed delay.
type Simulator struct {
	delay time.Duration
}

// NewSimulator creates a simulator. A negative delay uses the default;
// zero disables pacing.
func NewSimulator(delay time.Duration) *Simulator {
	if delay < 0 {
		delay = DefaultStepDelay
	}
	return &Simulator{delay: delay}
}

// Dispatch implements robot.Link.
func (s *Simulator) Dispatch(ctx context.Context, step robot.Step) (string, error) {
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	logging.Debug().
		Add(logging.Component("simulator")).
		Add(logging.StepID(step.ID)).
		Add(logging.Str("action", string(step.Action))).
		Add(logging.Str("target", step.Target)).
		Msg("step simulated")
	return "ok", nil
}

// Mode implements robot.Link.
func (s *Simulator) Mode() string {
	return ModeSimulation
}
