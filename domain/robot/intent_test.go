package robot

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseIntent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    Intent
		wantErr error
	}{
		{
			name:  "move",
			input: `{"goal":"move","position":"StationA"}`,
			want:  Move{Position: "StationA"},
		},
		{
			name:  "execute routine",
			input: `{"goal":"execute_routine","routine":"scan","position":"StationB"}`,
			want:  ExecuteRoutine{Routine: "scan", Position: "StationB"},
		},
		{
			name:  "attach tool",
			input: `{"goal":"attach_tool","tool":"Camera"}`,
			want:  AttachTool{Tool: "Camera"},
		},
		{
			name:  "release tool",
			input: `{"goal":"release_tool"}`,
			want:  ReleaseTool{},
		},
		{
			name:  "release and home",
			input: `{"goal":"release_tool_and_home"}`,
			want:  ReleaseToolAndHome{},
		},
		{
			name: "sequence with routine alias",
			input: `{"goal":"sequence","steps":[
				{"action":"routine","routine":"scan","position":"A"},
				{"action":"execute_routine","routine":"weld","position":"B"},
				{"action":"release_tool_and_home"}]}`,
			want: Sequence{Steps: []Intent{
				ExecuteRoutine{Routine: "scan", Position: "A"},
				ExecuteRoutine{Routine: "weld", Position: "B"},
				ReleaseToolAndHome{},
			}},
		},
		{
			name:  "unknown is not an error",
			input: `{"goal":"unknown"}`,
			want:  nil,
		},
		{
			name:    "unsupported goal",
			input:   `{"goal":"dance"}`,
			wantErr: ErrUnknownGoal,
		},
		{
			name:    "move without position",
			input:   `{"goal":"move"}`,
			wantErr: ErrInvalidIntent,
		},
		{
			name:    "nested sequence",
			input:   `{"goal":"sequence","steps":[{"action":"sequence"}]}`,
			wantErr: ErrInvalidIntent,
		},
		{
			name:    "malformed json",
			input:   `{"goal":`,
			wantErr: ErrInvalidIntent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseIntent([]byte(tt.input))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseIntent() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseIntent() unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseIntent() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMarshalIntent_Sequence(t *testing.T) {
	t.Parallel()

	in := Sequence{Steps: []Intent{Move{Position: "A"}, AttachTool{Tool: "Gripper"}}}
	data, err := MarshalIntent(in)
	if err != nil {
		t.Fatalf("MarshalIntent() error: %v", err)
	}

	want := `{"goal":"sequence","steps":[{"action":"move","position":"A"},{"action":"attach_tool","tool":"Gripper"}]}`
	if string(data) != want {
		t.Errorf("MarshalIntent() = %s, want %s", data, want)
	}

	back, err := ParseIntent(data)
	if err != nil {
		t.Fatalf("ParseIntent() error: %v", err)
	}
	if diff := cmp.Diff(Intent(in), back); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestFlatten(t *testing.T) {
	t.Parallel()

	if got := Flatten(Move{Position: "A"}); len(got) != 1 {
		t.Errorf("Flatten(Move) len = %d, want 1", len(got))
	}

	seq := Sequence{Steps: []Intent{ReleaseTool{}, Move{Position: "Home"}}}
	if got := Flatten(seq); len(got) != 2 {
		t.Errorf("Flatten(Sequence) len = %d, want 2", len(got))
	}
}
