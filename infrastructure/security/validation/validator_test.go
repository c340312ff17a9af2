package validation

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		rule    Rule
		value   any
		wantErr bool
	}{
		{name: "required string", rule: Required(), value: "value"},
		{name: "required empty", rule: Required(), value: "", wantErr: true},
		{name: "required nil", rule: Required(), value: nil, wantErr: true},
		{name: "max length exact", rule: MaxLength(5), value: "abcde"},
		{name: "max length exceeded", rule: MaxLength(5), value: "abcdef", wantErr: true},
		{name: "max length counts runes", rule: MaxLength(3), value: "äöü"},
		{name: "max length ignores numbers", rule: MaxLength(1), value: float64(123)},
		{name: "max items", rule: MaxItems(2), value: []any{1, 2}},
		{name: "max items exceeded", rule: MaxItems(2), value: []any{1, 2, 3}, wantErr: true},
		{name: "max items not array", rule: MaxItems(2), value: "steps", wantErr: true},
		{name: "pattern match", rule: Pattern(`^[a-z]+$`), value: "abc"},
		{name: "pattern mismatch", rule: Pattern(`^[a-z]+$`), value: "abc123", wantErr: true},
		{name: "pattern not string", rule: Pattern(`^[a-z]+$`), value: true, wantErr: true},
		{name: "allowed value", rule: AllowedValues("move", "sequence"), value: "move"},
		{name: "allowed value folds case", rule: AllowedValues("move"), value: " MOVE "},
		{name: "disallowed value", rule: AllowedValues("move"), value: "dance", wantErr: true},
		{name: "custom", rule: Custom("odd", func(any) error { return errors.New("no") }), value: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.rule.Validate(tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("%s.Validate(%v) error = %v, wantErr %v", tt.rule.Name(), tt.value, err, tt.wantErr)
			}
		})
	}
}

func TestSchema_Validate(t *testing.T) {
	t.Parallel()

	schema := NewSchema().
		AddRule("goal", Required()).
		AddRule("goal", AllowedValues("move", "execute_routine")).
		AddRule("position", MaxLength(8))

	tests := []struct {
		name    string
		input   string
		wantErr []string
	}{
		{name: "valid", input: `{"goal":"move","position":"Home"}`},
		{name: "optional field missing", input: `{"goal":"move"}`},
		{name: "required missing", input: `{"position":"Home"}`, wantErr: []string{"goal: field is required"}},
		{
			name:    "all errors reported",
			input:   `{"goal":"dance","position":"FarFarAway"}`,
			wantErr: []string{"goal: must be one of", "position: exceeds maximum length of 8"},
		},
		{name: "not an object", input: `["move"]`, wantErr: []string{"not a JSON object"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := schema.Validate(json.RawMessage(tt.input))
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("Validate() error = %v, want ErrInvalid", err)
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q missing %q", err, want)
				}
			}
		})
	}
}

func TestCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "plain", input: "scan the part at StationB"},
		{name: "json intent", input: `{"goal":"move","position":"Home"}`},
		{name: "tab allowed", input: "move\tHome"},
		{name: "empty", input: "", wantErr: true},
		{name: "blank", input: "   ", wantErr: true},
		{name: "newline", input: "move\nHome", wantErr: true},
		{name: "escape sequence", input: "move \x1b[2J", wantErr: true},
		{name: "invalid utf8", input: "move \xff", wantErr: true},
		{name: "too long", input: strings.Repeat("a", MaxCommandLength+1), wantErr: true},
		{name: "at limit", input: strings.Repeat("a", MaxCommandLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Command(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("Command() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Errorf("Command() error %v does not wrap ErrInvalid", err)
			}
		})
	}
}
