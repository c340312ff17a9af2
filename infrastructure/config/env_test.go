package config

import (
	"errors"
	"testing"

	domainconfig "github.com/felixgeelhaar/robotflow/domain/config"
)

func mapLookup(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestEnvExpander_Expand(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"ROBOT_HOST": "10.0.0.7",
		"EMPTY":      "",
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "bracket syntax", input: "${ROBOT_HOST}", want: "10.0.0.7"},
		{name: "dollar syntax", input: "$ROBOT_HOST", want: "10.0.0.7"},
		{name: "embedded in text", input: "tcp://${ROBOT_HOST}:5000", want: "tcp://10.0.0.7:5000"},
		{name: "unset with default", input: "${UNSET:-graph.yaml}", want: "graph.yaml"},
		{name: "empty uses default", input: "${EMPTY:-fallback}", want: "fallback"},
		{name: "default with colon", input: "${UNSET:-http://localhost:11434}", want: "http://localhost:11434"},
		{name: "unset without default", input: "${UNSET}", want: ""},
		{name: "no variables", input: "plain text", want: "plain text"},
		{name: "dollar amount", input: "price: $100", want: "price: $100"},
		{name: "invalid syntax", input: "${incomplete", want: "${incomplete"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := &envExpander{lookup: mapLookup(env)}
			got, err := e.Expand(tt.input)
			if err != nil {
				t.Fatalf("Expand() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Expand(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestEnvExpander_Missing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		strict bool
		input  string
	}{
		{name: "required", input: "${NEO4J_PASSWORD:?neo4j password is required}"},
		{name: "strict bracket", strict: true, input: "${MISSING}"},
		{name: "strict simple", strict: true, input: "$MISSING"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := &envExpander{strict: tt.strict, lookup: mapLookup(nil)}
			_, err := e.Expand(tt.input)
			if !errors.Is(err, domainconfig.ErrMissingEnvVar) {
				t.Errorf("Expand() error = %v, want ErrMissingEnvVar", err)
			}
		})
	}
}

func TestExpandEnv_Process(t *testing.T) {
	t.Setenv("ROBOTFLOW_TEST_VAR", "hello")

	if got := ExpandEnv("${ROBOTFLOW_TEST_VAR}"); got != "hello" {
		t.Errorf("ExpandEnv() = %q, want hello", got)
	}
	if _, err := ExpandEnvStrict("${ROBOTFLOW_TEST_UNSET}"); err == nil {
		t.Error("ExpandEnvStrict() should fail for unset variable")
	}
}
