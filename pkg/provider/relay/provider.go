// Package relay defines the fallback channel for utterances that match no
// known command.
//
// A Relay forwards free text to a generative language model and returns its
// advisory answer. The pipeline treats every relay failure as non-fatal: an
// unreachable backend or an empty answer is logged and the next utterance is
// processed normally.
//
// Implementations must be safe for concurrent use.
package relay

import (
	"context"
	"errors"
)

// DefaultSystemPrompt frames the model as the robot's conversational voice.
// Relays that accept a system prompt use it unless configured otherwise.
const DefaultSystemPrompt = "Tu es l'assistant vocal d'un petit robot. Réponds en français, en une ou deux phrases courtes."

var (
	// ErrEmptyResponse is returned when the backend answered without text.
	ErrEmptyResponse = errors.New("relay: empty response")

	// ErrPromptTooLong is returned when the prompt exceeds the relay's limit.
	ErrPromptTooLong = errors.New("relay: prompt too long")

	// ErrEmptyPrompt is returned for a blank prompt.
	ErrEmptyPrompt = errors.New("relay: empty prompt")
)

// Relay answers free-form text.
type Relay interface {
	// Ask sends prompt to the backend and returns its response text. It
	// blocks until the backend answers or ctx is done.
	Ask(ctx context.Context, prompt string) (string, error)
}

// Func adapts an ordinary function to the [Relay] interface.
type Func func(ctx context.Context, prompt string) (string, error)

// Ask implements [Relay].
func (f Func) Ask(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
