// Package llm provides the natural-language services of the workflow:
// intent extraction, command classification and question answering, all
// backed by a langchaingo model.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/felixgeelhaar/robotflow/domain/config"
	"github.com/felixgeelhaar/robotflow/infrastructure/logging"
	"github.com/felixgeelhaar/robotflow/infrastructure/resilience"
)

// Providers understood by New.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// DefaultOllamaURL is used when the ollama provider has no base URL.
const DefaultOllamaURL = "http://localhost:11434"

var (
	// ErrDisabled indicates no model provider is configured.
	ErrDisabled = errors.New("language model disabled")

	// ErrUnknownProvider indicates an unsupported provider name.
	ErrUnknownProvider = errors.New("unknown model provider")

	// ErrUnavailable indicates the model call failed.
	ErrUnavailable = errors.New("language model unavailable")

	// ErrEmptyResponse indicates the model returned no choices.
	ErrEmptyResponse = errors.New("empty model response")

	// ErrInvalidResponse indicates the model output could not be interpreted.
	ErrInvalidResponse = errors.New("invalid model response")
)

// NewModel builds the langchaingo model for the configured provider.
func NewModel(cfg config.LLMConfig) (llms.Model, error) {
	if !cfg.Enabled() {
		return nil, ErrDisabled
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(cfg.Token),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)
	case ProviderOllama:
		url := cfg.BaseURL
		if url == "" {
			url = DefaultOllamaURL
		}
		return ollama.New(ollama.WithModel(cfg.Model), ollama.WithServerURL(url))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}

// Client sends single-prompt requests to a model through the resilient
// executor.
type Client struct {
	model    llms.Model
	executor *resilience.Executor[string]
}

// NewClient wraps model. A nil executor uses the model defaults.
func NewClient(model llms.Model, executor *resilience.Executor[string]) *Client {
	if executor == nil {
		executor = resilience.NewExecutor[string](resilience.ModelExecutorConfig())
	}
	return &Client{model: model, executor: executor}
}

// NewClientFromConfig builds the model and wraps it with a per-call timeout
// taken from cfg.
func NewClientFromConfig(cfg config.LLMConfig) (*Client, error) {
	model, err := NewModel(cfg)
	if err != nil {
		return nil, err
	}
	ec := resilience.ModelExecutorConfig()
	if cfg.Timeout > 0 {
		ec.DefaultTimeout = cfg.Timeout.Duration()
	}
	return NewClient(model, resilience.NewExecutor[string](ec)), nil
}

// Generate sends prompt as a single human message and returns the text of
// the first choice.
func (c *Client) Generate(ctx context.Context, correlationID, prompt string, opts ...llms.CallOption) (string, error) {
	start := time.Now()

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(prompt)},
		},
	}

	text, err := c.executor.Execute(ctx, func(ctx context.Context) (string, error) {
		resp, err := c.model.GenerateContent(ctx, messages, opts...)
		if err != nil {
			return "", err
		}
		if resp == nil || len(resp.Choices) == 0 {
			return "", ErrEmptyResponse
		}
		return resp.Choices[0].Content, nil
	})
	if err != nil {
		logging.Warn().
			Add(logging.CorrelationID(correlationID)).
			Add(logging.Component("llm")).
			Add(logging.ErrorField(err)).
			Msg("model call failed")
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	logging.Debug().
		Add(logging.CorrelationID(correlationID)).
		Add(logging.Component("llm")).
		Add(logging.Duration(time.Since(start))).
		Add(logging.Int("response_chars", len(text))).
		Msg("model call complete")

	return strings.TrimSpace(text), nil
}

// ExtractJSON returns the JSON object embedded in a model reply. Markdown
// fences and surrounding commentary are dropped. The result is "{}" when no
// object is present.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return "{}"
	}

	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		end := len(lines)
		for i := len(lines) - 1; i > 0; i-- {
			if strings.TrimSpace(lines[i]) == "```" {
				end = i
				break
			}
		}
		text = strings.TrimSpace(strings.Join(lines[1:end], "\n"))
	}

	start := strings.Index(text, "{")
	stop := strings.LastIndex(text, "}")
	if start == -1 || stop == -1 || start >= stop {
		return "{}"
	}
	return text[start : stop+1]
}
