// Package anyllm implements [relay.Relay] on top of any-llm-go, giving the
// fallback channel access to every backend that library supports.
//
// Example:
//
//	r, err := anyllm.New("anthropic", "claude-3-5-haiku-latest", anyllmlib.WithAPIKey("sk-ant-..."))
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/mira/pkg/provider/relay"
)

var _ relay.Relay = (*Relay)(nil)

// Relay sends prompts through an any-llm-go backend.
type Relay struct {
	backend   anyllmlib.Provider
	model     string
	system    string
	maxTokens int
}

// Option configures a [Relay] after the backend has been created.
type Option func(*Relay)

// WithSystemPrompt replaces [relay.DefaultSystemPrompt]. An empty prompt sends
// no system message.
func WithSystemPrompt(s string) Option {
	return func(r *Relay) { r.system = s }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(r *Relay) { r.maxTokens = n }
}

// New creates a [Relay] for the named backend.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama",
// "deepseek", "mistral", "groq", "llamacpp", "llamafile".
func New(providerName, model string, backendOpts []anyllmlib.Option, opts ...Option) (*Relay, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm relay: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm relay: model must not be empty")
	}
	backend, err := createBackend(providerName, backendOpts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm relay: create %q backend: %w", providerName, err)
	}
	return newWithBackend(backend, model, opts...), nil
}

func newWithBackend(backend anyllmlib.Provider, model string, opts ...Option) *Relay {
	r := &Relay{backend: backend, model: model, system: relay.DefaultSystemPrompt}
	for _, o := range opts {
		o(r)
	}
	return r
}

func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", providerName)
	}
}

// Ask implements [relay.Relay].
func (r *Relay) Ask(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", relay.ErrEmptyPrompt
	}
	resp, err := r.backend.Completion(ctx, r.buildParams(prompt))
	if err != nil {
		return "", fmt.Errorf("anyllm relay: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", relay.ErrEmptyResponse
	}
	answer := resp.Choices[0].Message.ContentString()
	if strings.TrimSpace(answer) == "" {
		return "", relay.ErrEmptyResponse
	}
	return answer, nil
}

func (r *Relay) buildParams(prompt string) anyllmlib.CompletionParams {
	var messages []anyllmlib.Message
	if r.system != "" {
		messages = append(messages, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: r.system})
	}
	messages = append(messages, anyllmlib.Message{Role: "user", Content: prompt})

	params := anyllmlib.CompletionParams{
		Model:    r.model,
		Messages: messages,
	}
	if r.maxTokens > 0 {
		mt := r.maxTokens
		params.MaxTokens = &mt
	}
	return params
}
