package config

import (
	"encoding/json"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDuration_JSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Duration
	}{
		{name: "go duration", in: `"90s"`, want: 90 * time.Second},
		{name: "bare seconds", in: `"120"`, want: 120 * time.Second},
		{name: "minutes", in: `"2m"`, want: 2 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			if err := json.Unmarshal([]byte(tt.in), &d); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if d.Duration() != tt.want {
				t.Errorf("Duration() = %v, want %v", d.Duration(), tt.want)
			}
		})
	}

	out, err := json.Marshal(Duration(90 * time.Second))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(out) != `"1m30s"` {
		t.Errorf("Marshal() = %s", out)
	}
}

func TestDuration_InvalidJSON(t *testing.T) {
	var d Duration
	if err := json.Unmarshal([]byte(`"soon"`), &d); err == nil {
		t.Error("expected error for invalid duration")
	}
	if err := json.Unmarshal([]byte(`null`), &d); err != nil {
		t.Errorf("null should be accepted, got %v", err)
	}
}

func TestAppConfig_YAML(t *testing.T) {
	src := `
name: cell-7
workflow:
  max_plan_attempts: 5
  review_timeout: 45s
  review_mode: auto
knowledge:
  backend: memory
  graph_file: cell.yaml
  watch: true
state:
  backend: sqlite
  path: /tmp/state.db
  driver: sqlite
execution:
  mode: socket
  port: 5001
`
	var cfg AppConfig
	if err := yaml.Unmarshal([]byte(src), &cfg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if cfg.Workflow.MaxPlanAttempts != 5 || cfg.Workflow.ReviewTimeout.Duration() != 45*time.Second {
		t.Errorf("workflow = %+v", cfg.Workflow)
	}
	if !cfg.Knowledge.Watch || cfg.Knowledge.GraphFile != "cell.yaml" {
		t.Errorf("knowledge = %+v", cfg.Knowledge)
	}
	if cfg.State.Driver != DriverPureGo {
		t.Errorf("state driver = %q", cfg.State.Driver)
	}
	if cfg.Execution.Mode != ModeSocket || cfg.Execution.Port != 5001 {
		t.Errorf("execution = %+v", cfg.Execution)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Workflow.MaxPlanAttempts != 3 {
		t.Errorf("MaxPlanAttempts = %d, want 3", cfg.Workflow.MaxPlanAttempts)
	}
	if cfg.Workflow.ReviewTimeout.Duration() != 120*time.Second {
		t.Errorf("ReviewTimeout = %v, want 120s", cfg.Workflow.ReviewTimeout.Duration())
	}
	if cfg.Execution.Host != "127.0.0.1" || cfg.Execution.Port != 5000 {
		t.Errorf("socket = %s:%d", cfg.Execution.Host, cfg.Execution.Port)
	}
	if errs := NewValidator().Validate(&cfg); errs.HasErrors() {
		t.Errorf("default config should validate, got: %v", errs)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"MAX_PLAN_ATTEMPTS":    "4",
		"HUMAN_REVIEW_TIMEOUT": "30",
		"ROBOT_EXECUTION_MODE": "socket",
		"ROBOT_SOCKET_PORT":    "6000",
		"SQLITE_STATE_DB":      "/var/lib/state.db",
		"NEO4J_URI":            "bolt://graph:7687",
		"NEO4J_USER":           "neo4j",
		"MODEL_PROVIDER":       "ollama",
		"OLLAMA_MODEL":         "llama3",
		"TELEGRAM_CHAT_ID":     "-1001",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}

	if cfg.Workflow.MaxPlanAttempts != 4 {
		t.Errorf("MaxPlanAttempts = %d", cfg.Workflow.MaxPlanAttempts)
	}
	if cfg.Workflow.ReviewTimeout.Duration() != 30*time.Second {
		t.Errorf("ReviewTimeout = %v", cfg.Workflow.ReviewTimeout.Duration())
	}
	if cfg.Execution.Mode != ModeSocket || cfg.Execution.Port != 6000 {
		t.Errorf("execution = %+v", cfg.Execution)
	}
	if cfg.State.Path != "/var/lib/state.db" {
		t.Errorf("state path = %q", cfg.State.Path)
	}
	if cfg.Knowledge.Backend != BackendNeo4j || cfg.Knowledge.Neo4j.User != "neo4j" {
		t.Errorf("knowledge = %+v", cfg.Knowledge)
	}
	if cfg.LLM.Model != "llama3" {
		t.Errorf("model = %q", cfg.LLM.Model)
	}
	if cfg.Notify.TelegramChatID != -1001 {
		t.Errorf("chat id = %d", cfg.Notify.TelegramChatID)
	}
}

func TestApplyEnv_Invalid(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == "MAX_PLAN_ATTEMPTS" {
			return "three", true
		}
		return "", false
	}

	cfg := Default()
	err := cfg.ApplyEnv(lookup)
	if err == nil {
		t.Fatal("expected error")
	}
	if cfg.Workflow.MaxPlanAttempts != 3 {
		t.Errorf("invalid override should leave the value, got %d", cfg.Workflow.MaxPlanAttempts)
	}
}
