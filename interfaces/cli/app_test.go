package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/robotflow/domain/config"
	"github.com/felixgeelhaar/robotflow/domain/knowledge/graphtest"
	"github.com/felixgeelhaar/robotflow/domain/robot"
	"github.com/felixgeelhaar/robotflow/domain/sequence"
	"github.com/felixgeelhaar/robotflow/domain/workflow"
	infraconfig "github.com/felixgeelhaar/robotflow/infrastructure/config"
)

// The CLI tests share the process logger, so they do not run in parallel.

type fixture struct {
	dir    string
	config string
	graph  string
}

func newFixture(t *testing.T, mutate ...func(*config.AppConfig)) fixture {
	t.Helper()
	dir := t.TempDir()

	data, err := yaml.Marshal(graphtest.Cell())
	if err != nil {
		t.Fatalf("marshal graph: %v", err)
	}
	graph := filepath.Join(dir, "graph.yaml")
	if err := os.WriteFile(graph, data, 0o600); err != nil {
		t.Fatalf("write graph: %v", err)
	}

	cfg := config.Default()
	cfg.Workflow.ReviewMode = config.ReviewAuto
	cfg.Knowledge.GraphFile = graph
	cfg.State = config.StoreConfig{Backend: config.BackendSQLite, Path: filepath.Join(dir, "state.db"), Driver: config.DriverPureGo}
	cfg.History = config.StoreConfig{Backend: config.BackendSQLite, Path: filepath.Join(dir, "history.db"), Driver: config.DriverPureGo}
	cfg.Execution.StepDelay = config.Duration(time.Millisecond)
	cfg.Archive.ActionsFile = filepath.Join(dir, "actions.yaml")
	for _, m := range mutate {
		m(&cfg)
	}

	out, err := infraconfig.Marshal(&cfg, infraconfig.FormatYAML)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(dir, "robotflow.yaml")
	if err := os.WriteFile(path, out, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return fixture{dir: dir, config: path, graph: graph}
}

// exec runs one CLI invocation against the fixture config.
func (f fixture) exec(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr).WithInput(strings.NewReader(stdin))
	err := app.ExecuteWithArgs(context.Background(), append([]string{"--config", f.config}, args...))
	return stdout.String(), err
}

func TestVersion(t *testing.T) {
	var stdout bytes.Buffer
	app := New().WithOutput(&stdout, &bytes.Buffer{})
	if err := app.ExecuteWithArgs(context.Background(), []string{"version"}); err != nil {
		t.Fatalf("version error: %v", err)
	}
	if !strings.Contains(stdout.String(), "robotflow version "+Version) {
		t.Errorf("output = %q", stdout.String())
	}
}

func TestRun_PersistsState(t *testing.T) {
	f := newFixture(t)

	out, err := f.exec(t, "", "run", `{"goal":"move","position":"Junction"}`)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if !strings.Contains(out, "Simulated successfully") || !strings.Contains(out, "correlation id:") {
		t.Errorf("run output = %q", out)
	}

	out, err = f.exec(t, "", "state", "--json")
	if err != nil {
		t.Fatalf("state error: %v", err)
	}
	var state robot.State
	if err := json.Unmarshal([]byte(out), &state); err != nil {
		t.Fatalf("decode state: %v\n%s", err, out)
	}
	if state.Position != "Junction" || state.Tool != robot.NoTool {
		t.Errorf("state = %+v", state)
	}
}

func TestRun_JSON(t *testing.T) {
	f := newFixture(t)

	out, err := f.exec(t, "", "run", "--json", `{"goal":"execute_routine","routine":"scan","position":"StationB"}`)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	var run workflow.Run
	if err := json.Unmarshal([]byte(out), &run); err != nil {
		t.Fatalf("decode run: %v\n%s", err, out)
	}
	if run.Fallback != workflow.ReasonNone || len(run.Plan) != 5 {
		t.Errorf("run = %q with %d steps", run.Fallback, len(run.Plan))
	}
}

func TestRun_Ledger(t *testing.T) {
	f := newFixture(t)

	out, err := f.exec(t, "", "run", "--ledger", `{"goal":"move","position":"Junction"}`)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	for _, want := range []string{"Ledger", "run_started", "state_transition", "run_completed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRun_TerminalDecline(t *testing.T) {
	f := newFixture(t, func(c *config.AppConfig) { c.Workflow.ReviewMode = config.ReviewTerminal })

	out, err := f.exec(t, "d\n", "run", `{"goal":"move","position":"Junction"}`)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if !strings.Contains(out, "PLAN REVIEW REQUIRED") {
		t.Errorf("review banner missing:\n%s", out)
	}
	if strings.Contains(out, "Simulated successfully") {
		t.Errorf("declined plan was executed:\n%s", out)
	}
}

func TestRun_AutoApproveOverridesTerminal(t *testing.T) {
	f := newFixture(t, func(c *config.AppConfig) { c.Workflow.ReviewMode = config.ReviewTerminal })

	out, err := f.exec(t, "", "run", "--auto-approve", `{"goal":"move","position":"Junction"}`)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if strings.Contains(out, "PLAN REVIEW REQUIRED") || !strings.Contains(out, "Simulated successfully") {
		t.Errorf("output = %q", out)
	}
}

func TestChat(t *testing.T) {
	f := newFixture(t, func(c *config.AppConfig) { c.Workflow.ReviewMode = config.ReviewTerminal })

	input := strings.Join([]string{
		"",
		`{"goal":"move","position":"Junction"}`,
		"a",
		"exit",
	}, "\n") + "\n"
	out, err := f.exec(t, input, "chat")
	if err != nil {
		t.Fatalf("chat error: %v", err)
	}
	for _, want := range []string{"robotflow>", "PLAN REVIEW REQUIRED", "Simulated successfully"} {
		if !strings.Contains(out, want) {
			t.Errorf("chat output missing %q:\n%s", want, out)
		}
	}
}

func TestChat_EndsOnEOF(t *testing.T) {
	f := newFixture(t)

	if _, err := f.exec(t, "", "chat"); err != nil {
		t.Errorf("chat error: %v", err)
	}
}

func TestHistory(t *testing.T) {
	f := newFixture(t)

	out, err := f.exec(t, "", "run", "--json", `{"goal":"move","position":"Junction"}`)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	var run workflow.Run
	if err := json.Unmarshal([]byte(out), &run); err != nil {
		t.Fatalf("decode run: %v", err)
	}

	out, err = f.exec(t, "", "history", "--status", "completed")
	if err != nil {
		t.Fatalf("history error: %v", err)
	}
	if !strings.Contains(out, run.CorrelationID) || !strings.Contains(out, "completed") {
		t.Errorf("history output = %q", out)
	}

	out, err = f.exec(t, "", "history", "--status", "failed")
	if err != nil {
		t.Fatalf("history error: %v", err)
	}
	if !strings.Contains(out, "No runs found.") {
		t.Errorf("failed runs = %q", out)
	}

	out, err = f.exec(t, "", "history", run.CorrelationID)
	if err != nil {
		t.Fatalf("history <id> error: %v", err)
	}
	if !strings.Contains(out, "Junction") || !strings.Contains(out, "completed") {
		t.Errorf("run detail = %q", out)
	}
}

func TestHistory_InvalidFlags(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "status", args: []string{"history", "--status", "exploded"}},
		{name: "date", args: []string{"history", "--date", "19/10/2026"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.exec(t, "", tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestPlan(t *testing.T) {
	f := newFixture(t)

	out, err := f.exec(t, "", "plan", `{"goal":"execute_routine","routine":"scan","position":"StationB"}`)
	if err != nil {
		t.Fatalf("plan error: %v", err)
	}
	if !strings.Contains(out, "Verification passed") || !strings.Contains(out, "StationB") {
		t.Errorf("plan output = %q", out)
	}

	// Planning never moves the robot.
	out, err = f.exec(t, "", "state", "--json")
	if err != nil {
		t.Fatalf("state error: %v", err)
	}
	if !strings.Contains(out, `"current_position": "Home"`) {
		t.Errorf("state after plan = %s", out)
	}
}

func TestPlan_FromStdin(t *testing.T) {
	f := newFixture(t)

	out, err := f.exec(t, `{"goal":"move","position":"Junction"}`, "plan", "--json", "-")
	if err != nil {
		t.Fatalf("plan error: %v", err)
	}
	if !strings.Contains(out, `"valid": true`) {
		t.Errorf("plan output = %q", out)
	}
}

func TestPlan_UnknownPosition(t *testing.T) {
	f := newFixture(t)

	if _, err := f.exec(t, "", "plan", `{"goal":"move","position":"Atlantis"}`); err == nil {
		t.Error("expected error for an unknown position")
	}
}

func TestVerify(t *testing.T) {
	f := newFixture(t)

	valid := robot.Plan{{ID: 1, Name: "Move to Junction", Action: robot.ActionMove, Target: "Junction"}}
	doc, err := sequence.Render(sequence.FromPlan("run-1", "move", valid), "run-1", "move to Junction", time.Now())
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	yamlPlan := filepath.Join(f.dir, "valid.yaml")
	if err := os.WriteFile(yamlPlan, doc, 0o600); err != nil {
		t.Fatal(err)
	}

	jsonPlan := filepath.Join(f.dir, "invalid.json")
	if err := os.WriteFile(jsonPlan, []byte(`{"steps":[{"id":1,"name":"Move to Atlantis","action":"move","target":"Atlantis"}]}`), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := f.exec(t, "", "verify", yamlPlan)
	if err != nil {
		t.Fatalf("verify valid error: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Verification passed") {
		t.Errorf("verify output = %q", out)
	}

	out, err = f.exec(t, "", "verify", jsonPlan)
	if err == nil || !strings.Contains(err.Error(), "plan is invalid") {
		t.Fatalf("verify invalid error = %v", err)
	}
	if !strings.Contains(out, "Verification failed") {
		t.Errorf("verify output = %q", out)
	}
}

func TestVerify_BadFile(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.dir, "broken.yaml")
	if err := os.WriteFile(path, []byte("steps: [: :"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := f.exec(t, "", "verify", path); err == nil || !strings.Contains(err.Error(), "invalid plan") {
		t.Errorf("verify error = %v", err)
	}
	if _, err := f.exec(t, "", "verify", filepath.Join(f.dir, "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestGraphCheck(t *testing.T) {
	f := newFixture(t)

	out, err := f.exec(t, "", "graph", "check")
	if err != nil {
		t.Fatalf("graph check error: %v", err)
	}
	if !strings.Contains(out, "is valid") || !strings.Contains(out, "Positions:") {
		t.Errorf("graph check output = %q", out)
	}

	broken := filepath.Join(f.dir, "broken-graph.yaml")
	if err := os.WriteFile(broken, []byte("moves:\n  - from: Home\n    to: Nowhere\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := f.exec(t, "", "graph", "check", broken); err == nil {
		t.Error("expected error for an edge to an unknown position")
	}
}

func TestConfigShow_MasksSecrets(t *testing.T) {
	const webhook = "https://discord.com/api/webhooks/1/secret-token"
	f := newFixture(t, func(c *config.AppConfig) { c.Notify.DiscordWebhook = webhook })

	out, err := f.exec(t, "", "config", "show", "--format", "json")
	if err != nil {
		t.Fatalf("config show error: %v", err)
	}
	var cfg config.AppConfig
	if err := json.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatalf("decode config: %v\n%s", err, out)
	}
	if cfg.Notify.DiscordWebhook != masked {
		t.Errorf("webhook = %q", cfg.Notify.DiscordWebhook)
	}
	if cfg.Knowledge.GraphFile != f.graph {
		t.Errorf("graph file = %q", cfg.Knowledge.GraphFile)
	}
}

func TestMissingConfig(t *testing.T) {
	var stdout bytes.Buffer
	app := New().WithOutput(&stdout, &bytes.Buffer{})
	err := app.ExecuteWithArgs(context.Background(), []string{"--config", filepath.Join(t.TempDir(), "none.yaml"), "state"})
	if err == nil || !strings.Contains(err.Error(), "failed to load configuration") {
		t.Errorf("error = %v", err)
	}
}

func TestRun_RejectsControlCharacters(t *testing.T) {
	f := newFixture(t)

	if _, err := f.exec(t, "", "run", "move to Home \x1b[2J"); err == nil || !strings.Contains(err.Error(), "control character") {
		t.Errorf("run error = %v", err)
	}
}
