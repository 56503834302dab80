// Package ollama implements [relay.Relay] against a local Ollama server's
// /api/generate endpoint with streaming disabled.
//
// The request body is assembled directly as
//
//	{"model": "<model>", "prompt": "<escaped prompt>", "stream": false}
//
// and the answer is read from the "response" field of the reply.
package ollama

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/mira/internal/jsonfield"
	"github.com/MrWong99/mira/pkg/provider/relay"
)

const (
	// DefaultBaseURL is the default Ollama server address.
	DefaultBaseURL = "http://localhost:11434"

	// DefaultModel is a small instruction model suited to short answers.
	DefaultModel = "ministral:3b"

	// DefaultMaxPromptBytes bounds the escaped prompt.
	DefaultMaxPromptBytes = 4096

	// DefaultMaxResponseBytes bounds the reply body that is read.
	DefaultMaxResponseBytes = 64 << 10

	defaultTimeout = 60 * time.Second
)

// Compile-time interface assertion.
var _ relay.Relay = (*Relay)(nil)

// Option configures a [Relay].
type Option func(*Relay)

// WithTimeout sets the HTTP client timeout. Default: 60s.
func WithTimeout(d time.Duration) Option {
	return func(r *Relay) { r.client.Timeout = d }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Relay) {
		if c != nil {
			r.client = c
		}
	}
}

// WithMaxPromptBytes sets the escaped prompt limit. Prompts above it fail with
// [relay.ErrPromptTooLong].
func WithMaxPromptBytes(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.maxPrompt = n
		}
	}
}

// WithMaxResponseBytes sets how much of the reply body is read.
func WithMaxResponseBytes(n int64) Option {
	return func(r *Relay) {
		if n > 0 {
			r.maxResponse = n
		}
	}
}

// Relay sends prompts to Ollama.
type Relay struct {
	baseURL     string
	model       string
	client      *http.Client
	maxPrompt   int
	maxResponse int64
}

// New creates a [Relay]. Empty baseURL and model select [DefaultBaseURL] and
// [DefaultModel].
func New(baseURL, model string, opts ...Option) (*Relay, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	r := &Relay{
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		client:      &http.Client{Timeout: defaultTimeout},
		maxPrompt:   DefaultMaxPromptBytes,
		maxResponse: DefaultMaxResponseBytes,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Model returns the configured model name.
func (r *Relay) Model() string { return r.model }

// Ask implements [relay.Relay].
func (r *Relay) Ask(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", relay.ErrEmptyPrompt
	}
	escaped := jsonfield.Escape(prompt)
	if len(escaped) > r.maxPrompt {
		return "", fmt.Errorf("ollama relay: %w: %d bytes, limit %d", relay.ErrPromptTooLong, len(escaped), r.maxPrompt)
	}
	body := requestBody(r.model, escaped)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/generate", bytes.NewBufferString(body))
	if err != nil {
		return "", fmt.Errorf("ollama relay: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama relay: request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxResponse))
	if err != nil {
		return "", fmt.Errorf("ollama relay: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := jsonfield.Extract(string(data), "error")
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		return "", fmt.Errorf("ollama relay: unexpected status %d: %s", resp.StatusCode, msg)
	}

	answer, ok := jsonfield.Extract(string(data), "response")
	if !ok || strings.TrimSpace(answer) == "" {
		return "", relay.ErrEmptyResponse
	}
	return answer, nil
}

// requestBody renders the /api/generate payload. model and prompt must
// already be escaped.
func requestBody(model, escapedPrompt string) string {
	return `{"model": "` + jsonfield.Escape(model) + `", "prompt": "` + escapedPrompt + `", "stream": false}`
}
