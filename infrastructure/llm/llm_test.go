package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/felixgeelhaar/robotflow/domain/config"
	"github.com/felixgeelhaar/robotflow/domain/history"
	"github.com/felixgeelhaar/robotflow/domain/knowledge"
	"github.com/felixgeelhaar/robotflow/domain/knowledge/graphtest"
	"github.com/felixgeelhaar/robotflow/domain/robot"
	"github.com/felixgeelhaar/robotflow/domain/workflow"
	"github.com/felixgeelhaar/robotflow/infrastructure/resilience"
	"github.com/felixgeelhaar/robotflow/infrastructure/storage/memory"
)

// fakeModel replies with canned text and records the prompts it saw.
type fakeModel struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (m *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				m.prompts = append(m.prompts, text.Text)
			}
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *fakeModel) lastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}

func newTestClient(m *fakeModel) *Client {
	cfg := resilience.DefaultExecutorConfig()
	cfg.DefaultTimeout = time.Second
	return NewClient(m, resilience.NewExecutor[string](cfg))
}

func snapshot(t *testing.T) knowledge.Snapshot {
	t.Helper()
	store, err := memory.NewKnowledgeStore(graphtest.Cell())
	if err != nil {
		t.Fatalf("NewKnowledgeStore() error: %v", err)
	}
	snap, err := knowledge.LoadSnapshot(context.Background(), store)
	if err != nil {
		t.Fatalf("LoadSnapshot() error: %v", err)
	}
	return snap
}

func TestExtractJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"goal":"release_tool"}`, `{"goal":"release_tool"}`},
		{"fenced json", "```json\n{\"goal\":\"move\"}\n```", `{"goal":"move"}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"commentary", `Here's the JSON: {"goal":"move"} hope that helps`, `{"goal":"move"}`},
		{"nested", `x {"a":{"b":1}} y`, `{"a":{"b":1}}`},
		{"empty", "", "{}"},
		{"no object", "I cannot help with that", "{}"},
		{"reversed braces", "} {", "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ExtractJSON(tt.in); got != tt.want {
				t.Errorf("ExtractJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewModel_Config(t *testing.T) {
	t.Parallel()

	if _, err := NewModel(config.LLMConfig{}); !errors.Is(err, ErrDisabled) {
		t.Errorf("empty provider: error = %v, want ErrDisabled", err)
	}
	if _, err := NewModel(config.LLMConfig{Provider: "none"}); !errors.Is(err, ErrDisabled) {
		t.Errorf("none provider: error = %v, want ErrDisabled", err)
	}
	if _, err := NewModel(config.LLMConfig{Provider: "palm"}); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("unknown provider: error = %v, want ErrUnknownProvider", err)
	}
	m, err := NewModel(config.LLMConfig{Provider: ProviderOllama, Model: "llama3"})
	if err != nil || m == nil {
		t.Errorf("ollama: model = %v, error = %v", m, err)
	}
	m, err = NewModel(config.LLMConfig{Provider: ProviderOpenAI, Model: "gpt-4o-mini", Token: "sk-test"})
	if err != nil || m == nil {
		t.Errorf("openai: model = %v, error = %v", m, err)
	}
}

func TestClient_Generate(t *testing.T) {
	t.Parallel()

	t.Run("trims reply", func(t *testing.T) {
		t.Parallel()
		m := &fakeModel{reply: "  hello \n"}
		got, err := newTestClient(m).Generate(context.Background(), "c1", "ping")
		if err != nil || got != "hello" {
			t.Errorf("Generate() = %q, %v", got, err)
		}
		if m.lastPrompt() != "ping" {
			t.Errorf("prompt = %q, want ping", m.lastPrompt())
		}
	})

	t.Run("wraps failures", func(t *testing.T) {
		t.Parallel()
		m := &fakeModel{err: errors.New("connection refused")}
		_, err := newTestClient(m).Generate(context.Background(), "c1", "ping")
		if !errors.Is(err, ErrUnavailable) {
			t.Errorf("error = %v, want ErrUnavailable", err)
		}
	})
}

func TestIntentExtractor_Extract(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		reply   string
		want    robot.Intent
		wantErr error
	}{
		{
			name:  "routine",
			reply: "```json\n{\"goal\": \"execute_routine\", \"routine\": \"scan\", \"position\": \"StationB\"}\n```",
			want:  robot.ExecuteRoutine{Routine: "scan", Position: "StationB"},
		},
		{
			name:  "sequence",
			reply: `{"goal":"sequence","steps":[{"action":"move","position":"StationA"},{"action":"release_tool_and_home"}]}`,
			want:  robot.Sequence{Steps: []robot.Intent{robot.Move{Position: "StationA"}, robot.ReleaseToolAndHome{}}},
		},
		{name: "explicit unknown", reply: `{"goal":"unknown"}`, want: nil},
		{name: "prose", reply: "Sorry, which station?", want: nil},
		{name: "bad goal", reply: `{"goal":"dance"}`, wantErr: robot.ErrUnknownGoal},
		{name: "missing field", reply: `{"goal":"move"}`, wantErr: robot.ErrInvalidIntent},
	}

	snap := snapshot(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := &fakeModel{reply: tt.reply}
			got, err := NewIntentExtractor(newTestClient(m)).Extract(context.Background(), ExtractRequest{
				CorrelationID: "c1",
				Command:       "scan station b",
				Knowledge:     snap,
				State:         graphtest.StartState(),
			})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Extract() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Extract() error: %v", err)
			}
			if !intentEqual(got, tt.want) {
				t.Errorf("Extract() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func intentEqual(a, b robot.Intent) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ja, err1 := robot.MarshalIntent(a)
	jb, err2 := robot.MarshalIntent(b)
	return err1 == nil && err2 == nil && string(ja) == string(jb)
}

func TestStructuredExtractor(t *testing.T) {
	t.Parallel()

	got, err := StructuredExtractor{}.Extract(context.Background(), ExtractRequest{Command: `{"goal":"attach_tool","tool":"Camera"}`})
	if err != nil || !intentEqual(got, robot.AttachTool{Tool: "Camera"}) {
		t.Errorf("Extract() = %#v, %v", got, err)
	}
	got, err = StructuredExtractor{}.Extract(context.Background(), ExtractRequest{Command: "go to station a"})
	if err != nil || got != nil {
		t.Errorf("free text: Extract() = %#v, %v, want unknown", got, err)
	}
}

func TestBuildIntentPrompt(t *testing.T) {
	t.Parallel()

	req := ExtractRequest{
		Command:   "scan station b",
		Knowledge: snapshot(t),
		State:     robot.State{Position: "Junction", Tool: "Gripper"},
		LastRun:   &history.Run{ID: "run-7", OperatorInput: "pick at station a"},
	}

	base := BuildIntentPrompt(req)
	for _, want := range []string{
		"- Position: Junction",
		"- Tool: Gripper",
		`"name": "StationB"`,
		`"required_tool": "Camera"`,
		`Command: "pick at station a"`,
		"**Operator Command:** scan station b",
		"Return JSON only:",
	} {
		if !strings.Contains(base, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(base, "Human Revision Request") || strings.Contains(base, "Previous Planning Error") {
		t.Error("prompt has revision sections without revision input")
	}

	req.Revision = "use the camera"
	req.Feedback = "Step 2: No allowed move from 'Home' to 'StationB'"
	revised := BuildIntentPrompt(req)
	if !strings.Contains(revised, `Human feedback: "use the camera"`) {
		t.Error("revision comments not in prompt")
	}
	if !strings.Contains(revised, "No allowed move from 'Home' to 'StationB'") {
		t.Error("prior feedback not in prompt")
	}
}

func TestIntentClassifier_Classify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		reply   string
		want    workflow.IntentClass
		wantErr bool
	}{
		{"action", `{"intent":"action","reasoning":"move command"}`, workflow.IntentAction, false},
		{"question fenced", "```json\n{\"intent\":\"question\",\"reasoning\":\"asks\"}\n```", workflow.IntentQuestion, false},
		{"odd label", `{"intent":"chitchat","reasoning":"greeting"}`, workflow.IntentUnknown, false},
		{"garbage", "ACTION!", "", true},
	}

	snap := snapshot(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := &fakeModel{reply: tt.reply}
			got, err := NewIntentClassifier(newTestClient(m)).Classify(context.Background(), ClassifyRequest{
				CorrelationID: "c1", Command: "go", Knowledge: snap,
			})
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidResponse) {
					t.Errorf("error = %v, want ErrInvalidResponse", err)
				}
				return
			}
			if err != nil || got.Intent != tt.want {
				t.Errorf("Classify() = %+v, %v, want %s", got, err, tt.want)
			}
			if !strings.Contains(m.lastPrompt(), "Available routines: check_part, pick, scan") {
				t.Errorf("capabilities missing from prompt:\n%s", m.lastPrompt())
			}
		})
	}
}

func TestQuestionAnswerer_Answer(t *testing.T) {
	t.Parallel()

	m := &fakeModel{reply: "The robot is at Home."}
	got, err := NewQuestionAnswerer(newTestClient(m)).Answer(context.Background(), QuestionRequest{
		CorrelationID: "c1",
		Question:      "where is the robot?",
		Knowledge:     snapshot(t),
		State:         graphtest.StartState(),
		Recent:        []history.Run{{ID: "r1", OperatorInput: "scan station b", Status: history.RunCompleted}},
	})
	if err != nil || got != "The robot is at Home." {
		t.Fatalf("Answer() = %q, %v", got, err)
	}

	prompt := m.lastPrompt()
	for _, want := range []string{
		"AVAILABLE POSITIONS:",
		"CURRENT ROBOT STATE:",
		"RECENT TASK HISTORY:",
		`"scan station b" -> completed`,
		`"where is the robot?"`,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	empty := &fakeModel{reply: "   "}
	if _, err := NewQuestionAnswerer(newTestClient(empty)).Answer(context.Background(), QuestionRequest{}); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("blank answer: error = %v, want ErrEmptyResponse", err)
	}
}
