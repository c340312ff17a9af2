// Package validation checks untrusted input before it reaches the planner:
// MCP tool arguments and operator commands.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("validation failed")

// MaxCommandLength bounds an operator command in runes.
const MaxCommandLength = 2000

// Rule defines a validation rule.
type Rule interface {
	// Name returns the rule name.
	Name() string

	// Validate validates a value against the rule.
	Validate(value any) error
}

// Schema holds the rules of the fields of one JSON object.
type Schema struct {
	rules map[string][]Rule
}

// NewSchema creates a new validation schema.
func NewSchema() *Schema {
	return &Schema{
		rules: make(map[string][]Rule),
	}
}

// AddRule adds a validation rule for a field.
func (s *Schema) AddRule(field string, rule Rule) *Schema {
	s.rules[field] = append(s.rules[field], rule)
	return s
}

// Validate checks a JSON object. Missing fields are only reported by
// Required. Errors are listed in field order.
func (s *Schema) Validate(input json.RawMessage) error {
	var data map[string]any
	if err := json.Unmarshal(input, &data); err != nil {
		return fmt.Errorf("%w: input is not a JSON object: %v", ErrInvalid, err)
	}

	fields := make([]string, 0, len(s.rules))
	for f := range s.rules {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var errs []string
	for _, field := range fields {
		value, exists := data[field]
		for _, rule := range s.rules[field] {
			if !exists {
				if _, ok := rule.(*RequiredRule); ok {
					errs = append(errs, fmt.Sprintf("%s: field is required", field))
				}
				continue
			}
			if err := rule.Validate(value); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %s", field, err.Error()))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}
	return nil
}

// RequiredRule validates that a field is present and non-empty.
type RequiredRule struct{}

func (r *RequiredRule) Name() string { return "required" }

func (r *RequiredRule) Validate(value any) error {
	if value == nil {
		return errors.New("field is required")
	}
	if str, ok := value.(string); ok && str == "" {
		return errors.New("field cannot be empty")
	}
	return nil
}

// Required creates a required rule.
func Required() Rule {
	return &RequiredRule{}
}

// MaxLengthRule validates that a string does not exceed a maximum length.
type MaxLengthRule struct {
	max int
}

func (r *MaxLengthRule) Name() string { return "max_length" }

func (r *MaxLengthRule) Validate(value any) error {
	str, ok := value.(string)
	if !ok {
		return nil // Only applies to strings
	}
	if utf8.RuneCountInString(str) > r.max {
		return fmt.Errorf("exceeds maximum length of %d", r.max)
	}
	return nil
}

// MaxLength creates a max length rule.
func MaxLength(max int) Rule {
	return &MaxLengthRule{max: max}
}

// MaxItemsRule bounds the length of an array.
type MaxItemsRule struct {
	max int
}

func (r *MaxItemsRule) Name() string { return "max_items" }

func (r *MaxItemsRule) Validate(value any) error {
	items, ok := value.([]any)
	if !ok {
		return errors.New("must be an array")
	}
	if len(items) > r.max {
		return fmt.Errorf("has %d items, maximum is %d", len(items), r.max)
	}
	return nil
}

// MaxItems creates a max items rule.
func MaxItems(max int) Rule {
	return &MaxItemsRule{max: max}
}

// PatternRule validates that a string matches a regex pattern.
type PatternRule struct {
	pattern *regexp.Regexp
}

func (r *PatternRule) Name() string { return "pattern" }

func (r *PatternRule) Validate(value any) error {
	str, ok := value.(string)
	if !ok {
		return errors.New("must be a string")
	}
	if !r.pattern.MatchString(str) {
		return fmt.Errorf("%q does not match %s", str, r.pattern)
	}
	return nil
}

// Pattern creates a pattern rule.
func Pattern(pattern string) Rule {
	return &PatternRule{pattern: regexp.MustCompile(pattern)}
}

// AllowedValuesRule validates that a string is one of a fixed set,
// ignoring case.
type AllowedValuesRule struct {
	values []string
}

func (r *AllowedValuesRule) Name() string { return "allowed_values" }

func (r *AllowedValuesRule) Validate(value any) error {
	str, ok := value.(string)
	if !ok {
		return errors.New("must be a string")
	}
	for _, v := range r.values {
		if strings.EqualFold(strings.TrimSpace(str), v) {
			return nil
		}
	}
	return fmt.Errorf("must be one of: %s", strings.Join(r.values, ", "))
}

// AllowedValues creates an allowed values rule.
func AllowedValues(values ...string) Rule {
	return &AllowedValuesRule{values: values}
}

// CustomRule allows custom validation logic.
type CustomRule struct {
	name     string
	validate func(value any) error
}

func (r *CustomRule) Name() string { return r.name }

func (r *CustomRule) Validate(value any) error {
	return r.validate(value)
}

// Custom creates a custom validation rule.
func Custom(name string, validate func(value any) error) Rule {
	return &CustomRule{name: name, validate: validate}
}

// Command checks an operator command: non-empty, valid UTF-8, bounded,
// and free of control characters other than tabs.
func Command(input string) error {
	switch {
	case strings.TrimSpace(input) == "":
		return fmt.Errorf("%w: command is empty", ErrInvalid)
	case !utf8.ValidString(input):
		return fmt.Errorf("%w: command is not valid UTF-8", ErrInvalid)
	case utf8.RuneCountInString(input) > MaxCommandLength:
		return fmt.Errorf("%w: command exceeds %d characters", ErrInvalid, MaxCommandLength)
	}
	for _, r := range input {
		if unicode.IsControl(r) && r != '\t' {
			return fmt.Errorf("%w: command contains control character %U", ErrInvalid, r)
		}
	}
	return nil
}
