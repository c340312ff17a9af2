package config

import "errors"

// Errors returned while loading and checking the robotflow configuration.
var (
	ErrConfigNotFound    = errors.New("configuration file not found")
	ErrInvalidFormat     = errors.New("invalid configuration format")
	ErrUnsupportedFormat = errors.New("unsupported configuration format")
	ErrValidationFailed  = errors.New("configuration validation failed")

	// ErrMissingEnvVar is returned for ${VAR:?msg} when VAR is unset.
	ErrMissingEnvVar = errors.New("required environment variable not set")

	// ErrInvalidEnvValue is returned when an override such as
	// MAX_PLAN_ATTEMPTS or ROBOT_SOCKET_PORT does not parse.
	ErrInvalidEnvValue = errors.New("invalid environment override")
)
