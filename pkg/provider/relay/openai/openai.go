// Package openai implements [relay.Relay] with the OpenAI chat completions
// API, or any server that speaks the same protocol.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/mira/pkg/provider/relay"
)

var _ relay.Relay = (*Relay)(nil)

// Relay answers prompts with a single non-streaming chat completion.
type Relay struct {
	client    oai.Client
	model     string
	system    string
	maxTokens int64
}

type config struct {
	baseURL    string
	timeout    time.Duration
	system     string
	maxTokens  int64
	maxRetries int
}

// Option is a functional option for [Relay].
type Option func(*config)

// WithBaseURL points the client at an OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithSystemPrompt replaces [relay.DefaultSystemPrompt]. An empty prompt sends
// no system message.
func WithSystemPrompt(s string) Option {
	return func(c *config) { c.system = s }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(c *config) { c.maxTokens = int64(n) }
}

// WithMaxRetries sets how often the client retries transient failures.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// New constructs a [Relay].
func New(apiKey, model string, opts ...Option) (*Relay, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai relay: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai relay: model must not be empty")
	}

	cfg := &config{system: relay.DefaultSystemPrompt, maxRetries: -1}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}

	return &Relay{
		client:    oai.NewClient(reqOpts...),
		model:     model,
		system:    cfg.system,
		maxTokens: cfg.maxTokens,
	}, nil
}

// Ask implements [relay.Relay].
func (r *Relay) Ask(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", relay.ErrEmptyPrompt
	}

	resp, err := r.client.Chat.Completions.New(ctx, r.buildParams(prompt))
	if err != nil {
		return "", fmt.Errorf("openai relay: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", relay.ErrEmptyResponse
	}
	answer := resp.Choices[0].Message.Content
	if strings.TrimSpace(answer) == "" {
		return "", relay.ErrEmptyResponse
	}
	return answer, nil
}

func (r *Relay) buildParams(prompt string) oai.ChatCompletionNewParams {
	var messages []oai.ChatCompletionMessageParamUnion
	if r.system != "" {
		messages = append(messages, oai.SystemMessage(r.system))
	}
	messages = append(messages, oai.UserMessage(prompt))

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(r.model),
		Messages: messages,
	}
	if r.maxTokens > 0 {
		params.MaxCompletionTokens = oai.Int(r.maxTokens)
	}
	return params
}
