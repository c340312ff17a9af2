package robot

import "errors"

// Domain errors for the robot model.
var (
	// ErrInvalidStepID indicates step ids are not dense and increasing.
	ErrInvalidStepID = errors.New("invalid step id")

	// ErrInvalidAction indicates a step action is neither move nor routine.
	ErrInvalidAction = errors.New("invalid step action")

	// ErrMissingTarget indicates a step has no target.
	ErrMissingTarget = errors.New("step target missing")

	// ErrInvalidIntent indicates an intent could not be decoded.
	ErrInvalidIntent = errors.New("invalid intent")

	// ErrStateUnavailable indicates the robot state could not be read.
	ErrStateUnavailable = errors.New("robot state unavailable")
)

// ErrUnknownGoal indicates an intent goal outside the closed set.
var ErrUnknownGoal = errors.New("unknown intent goal")

// ErrMissingTool indicates a tool attach step without its tool.
var ErrMissingTool = errors.New("tool_attach step missing 'tool' key")
