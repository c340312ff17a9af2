package ledger

import (
	"errors"
	"time"

	"github.com/felixgeelhaar/robotflow/domain/workflow"
)

// Event represents a domain event that can be published.
type Event interface {
	EventType() string
	Timestamp() time.Time
	RunID() string
}

// BaseEvent provides common event fields.
type BaseEvent struct {
	Type  string         `json:"type"`
	Time  time.Time      `json:"timestamp"`
	Run   string         `json:"run_id"`
	State workflow.State `json:"state,omitempty"`
}

// EventType returns the event type.
func (e BaseEvent) EventType() string {
	return e.Type
}

// Timestamp returns the event timestamp.
func (e BaseEvent) Timestamp() time.Time {
	return e.Time
}

// RunID returns the run ID.
func (e BaseEvent) RunID() string {
	return e.Run
}

// RunFinishedEvent is published when a run reaches terminal.
type RunFinishedEvent struct {
	BaseEvent
	Command  string                  `json:"command"`
	Intent   workflow.IntentClass    `json:"intent"`
	Fallback workflow.FallbackReason `json:"fallback_reason,omitempty"`
	Response string                  `json:"response"`
	Attempts int                     `json:"plan_attempts"`
	Steps    int                     `json:"steps"`
	Duration time.Duration           `json:"duration"`
}

// Succeeded reports whether the run finished without a fallback.
func (e RunFinishedEvent) Succeeded() bool {
	return e.Fallback == workflow.ReasonNone
}

// NewRunFinishedEvent creates a run finished event from the final run.
func NewRunFinishedEvent(run *workflow.Run) RunFinishedEvent {
	return RunFinishedEvent{
		BaseEvent: BaseEvent{
			Type:  "run.finished",
			Time:  time.Now(),
			Run:   run.CorrelationID,
			State: run.State,
		},
		Command:  run.OperatorInput,
		Intent:   run.Intent,
		Fallback: run.Fallback,
		Response: run.Response,
		Attempts: run.PlanAttempt,
		Steps:    len(run.Plan),
		Duration: run.Duration(),
	}
}

// EventPublisher publishes domain events.
type EventPublisher interface {
	Publish(event Event) error
}

// NoOpPublisher discards all events.
type NoOpPublisher struct{}

// Publish discards the event.
func (NoOpPublisher) Publish(_ Event) error {
	return nil
}

// MultiPublisher fans an event out to several publishers.
type MultiPublisher []EventPublisher

// Publish delivers to every publisher and joins their errors.
func (m MultiPublisher) Publish(event Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
