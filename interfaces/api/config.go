package api

import (
	"github.com/felixgeelhaar/robotflow/domain/config"
	infraconfig "github.com/felixgeelhaar/robotflow/infrastructure/config"
)

// Re-export configuration types used by callers of Build.
type (
	// AppConfig is the complete application configuration.
	AppConfig = config.AppConfig
	// ConfigDuration is a time.Duration with string encoding.
	ConfigDuration = config.Duration
	// ValidationErrors is a collection of validation errors.
	ValidationErrors = config.ValidationErrors
)

// DefaultConfig returns the built-in configuration.
func DefaultConfig() AppConfig {
	return config.Default()
}

// LoadConfig reads path, or the defaults when path is empty. Environment
// overrides are applied and the result is validated.
func LoadConfig(path string) (*AppConfig, error) {
	loader := infraconfig.NewLoader()
	if path == "" {
		return loader.LoadDefault()
	}
	return loader.LoadFile(path)
}
