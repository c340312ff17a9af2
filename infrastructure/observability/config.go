// Package observability sets up OpenTelemetry tracing and the meter
// provider for the workflow engine.
package observability

import (
	"time"

	"github.com/felixgeelhaar/robotflow/domain/config"
)

// ExporterType specifies the trace exporter.
type ExporterType string

const (
	// ExporterOTLP exports spans over OTLP/gRPC (Jaeger, Tempo, Grafana).
	ExporterOTLP ExporterType = "otlp"

	// ExporterStdout pretty-prints spans to stdout.
	ExporterStdout ExporterType = "stdout"

	// ExporterNone disables tracing.
	ExporterNone ExporterType = "none"
)

// Config configures the observability provider.
type Config struct {
	ServiceName    string
	ServiceVersion string

	Exporter     ExporterType
	Endpoint     string
	Insecure     bool
	SampleRate   float64
	BatchTimeout time.Duration

	// Metrics installs an SDK meter provider as the global provider.
	Metrics bool
}

// DefaultConfig returns a configuration with tracing disabled.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "robotflow",
		ServiceVersion: "dev",
		Exporter:       ExporterNone,
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
	}
}

// FromAppConfig maps the telemetry section of the application config.
func FromAppConfig(tc config.TelemetryConfig, version string) Config {
	cfg := DefaultConfig()
	if version != "" {
		cfg.ServiceVersion = version
	}
	if tc.Exporter != "" {
		cfg.Exporter = ExporterType(tc.Exporter)
	}
	cfg.Endpoint = tc.Endpoint
	cfg.Insecure = tc.Insecure
	cfg.Metrics = tc.Metrics
	return cfg
}
