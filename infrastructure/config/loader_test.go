package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	domainconfig "github.com/felixgeelhaar/robotflow/domain/config"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func isolated(env map[string]string) *Loader {
	return NewLoaderWithOptions(WithLookup(mapLookup(env)))
}

func TestLoader_LoadFile_YAML(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "robotflow.yaml", `
name: cell-7
workflow:
  max_plan_attempts: 5
  review_timeout: 45s
  review_mode: auto
knowledge:
  graph_file: ${GRAPH:-cells/seven.yaml}
execution:
  mode: socket
  port: 6001
`)

	cfg, err := isolated(nil).LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Name != "cell-7" {
		t.Errorf("Name = %s, want cell-7", cfg.Name)
	}
	if cfg.Workflow.MaxPlanAttempts != 5 {
		t.Errorf("MaxPlanAttempts = %d, want 5", cfg.Workflow.MaxPlanAttempts)
	}
	if cfg.Workflow.ReviewTimeout.Duration() != 45*time.Second {
		t.Errorf("ReviewTimeout = %v, want 45s", cfg.Workflow.ReviewTimeout.Duration())
	}
	if cfg.Knowledge.GraphFile != "cells/seven.yaml" {
		t.Errorf("GraphFile = %s, want default from expansion", cfg.Knowledge.GraphFile)
	}
	if cfg.Execution.Mode != domainconfig.ModeSocket || cfg.Execution.Port != 6001 {
		t.Errorf("Execution = %+v", cfg.Execution)
	}
	// Untouched sections keep their defaults.
	if cfg.Execution.Host != "127.0.0.1" {
		t.Errorf("Host = %s, want default 127.0.0.1", cfg.Execution.Host)
	}
	if cfg.State.Path != "data/robot_state.db" {
		t.Errorf("State.Path = %s, want default", cfg.State.Path)
	}
}

func TestLoader_LoadFile_JSON(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "robotflow.json", `{
  "name": "cell-json",
  "history": {"backend": "memory"}
}`)

	cfg, err := isolated(nil).LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Name != "cell-json" || cfg.History.Backend != domainconfig.BackendMemory {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoader_Overrides(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"MAX_PLAN_ATTEMPTS":    "4",
		"HUMAN_REVIEW_TIMEOUT": "10",
		"ROBOT_SOCKET_PORT":    "7000",
	}

	cfg, err := isolated(env).LoadString("name: cell\n", FormatYAML)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	if cfg.Workflow.MaxPlanAttempts != 4 {
		t.Errorf("MaxPlanAttempts = %d, want 4", cfg.Workflow.MaxPlanAttempts)
	}
	if cfg.Workflow.ReviewTimeout.Duration() != 10*time.Second {
		t.Errorf("ReviewTimeout = %v, want 10s", cfg.Workflow.ReviewTimeout.Duration())
	}
	if cfg.Execution.Port != 7000 {
		t.Errorf("Port = %d, want 7000", cfg.Execution.Port)
	}

	off := NewLoaderWithOptions(WithLookup(mapLookup(env)), WithOverrides(false))
	cfg, err = off.LoadString("name: cell\n", FormatYAML)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	if cfg.Workflow.MaxPlanAttempts != 3 {
		t.Errorf("overrides disabled: MaxPlanAttempts = %d, want 3", cfg.Workflow.MaxPlanAttempts)
	}
}

func TestLoader_LoadDefault(t *testing.T) {
	t.Parallel()

	cfg, err := isolated(map[string]string{"ROBOT_EXECUTION_MODE": "socket"}).LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() error = %v", err)
	}
	if cfg.Execution.Mode != domainconfig.ModeSocket {
		t.Errorf("Mode = %s, want socket", cfg.Execution.Mode)
	}
}

func TestLoader_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	tests := []struct {
		name    string
		load    func() error
		wantErr error
	}{
		{
			name: "missing file",
			load: func() error {
				_, err := isolated(nil).LoadFile(filepath.Join(dir, "nope.yaml"))
				return err
			},
			wantErr: domainconfig.ErrConfigNotFound,
		},
		{
			name: "directory",
			load: func() error {
				_, err := isolated(nil).LoadFile(dir)
				return err
			},
			wantErr: domainconfig.ErrInvalidFormat,
		},
		{
			name: "unsupported extension",
			load: func() error {
				_, err := isolated(nil).LoadFile(writeFile(t, "cfg.toml", "name = 1"))
				return err
			},
			wantErr: domainconfig.ErrUnsupportedFormat,
		},
		{
			name: "malformed yaml",
			load: func() error {
				_, err := isolated(nil).LoadString("workflow: [", FormatYAML)
				return err
			},
			wantErr: domainconfig.ErrInvalidFormat,
		},
		{
			name: "validation",
			load: func() error {
				_, err := isolated(nil).LoadString("execution:\n  mode: teleport\n", FormatYAML)
				return err
			},
			wantErr: domainconfig.ErrValidationFailed,
		},
		{
			name: "required variable",
			load: func() error {
				_, err := isolated(nil).LoadString("knowledge:\n  neo4j:\n    password: ${NEO4J_PASSWORD:?set it}\n", FormatYAML)
				return err
			},
			wantErr: domainconfig.ErrMissingEnvVar,
		},
		{
			name: "bad override",
			load: func() error {
				_, err := isolated(map[string]string{"ROBOT_SOCKET_PORT": "many"}).LoadString("name: x\n", FormatYAML)
				return err
			},
			wantErr: domainconfig.ErrInvalidEnvValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.load(); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoader_ValidationDisabled(t *testing.T) {
	t.Parallel()

	l := NewLoaderWithOptions(WithLookup(mapLookup(nil)), WithValidation(false))
	cfg, err := l.LoadString("execution:\n  mode: teleport\n", FormatYAML)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	if cfg.Execution.Mode != "teleport" {
		t.Errorf("Mode = %s", cfg.Execution.Mode)
	}
}

func TestMarshal(t *testing.T) {
	t.Parallel()

	cfg := domainconfig.Default()
	out, err := Marshal(&cfg, FormatYAML)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(out), "max_plan_attempts: 3") {
		t.Errorf("yaml output missing attempts:\n%s", out)
	}

	back, err := isolated(nil).LoadBytes(out, FormatYAML)
	if err != nil {
		t.Fatalf("LoadBytes() error = %v", err)
	}
	if back.Workflow.ReviewTimeout != cfg.Workflow.ReviewTimeout {
		t.Errorf("ReviewTimeout = %v, want %v", back.Workflow.ReviewTimeout, cfg.Workflow.ReviewTimeout)
	}

	if _, err := Marshal(&cfg, "toml"); !errors.Is(err, domainconfig.ErrUnsupportedFormat) {
		t.Errorf("Marshal(toml) error = %v", err)
	}
}
