// Package mock provides a test double for the relay.Relay interface.
//
// Example:
//
//	r := &mock.Relay{Response: "Il est midi."}
//	answer, err := r.Ask(ctx, "quelle heure est il")
//	// r.Calls[0].Prompt == "quelle heure est il"
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/mira/pkg/provider/relay"
)

// AskCall records a single invocation of Ask.
type AskCall struct {
	// Ctx is the context passed to Ask.
	Ctx context.Context
	// Prompt is the text passed to Ask.
	Prompt string
}

// Relay is a mock implementation of [relay.Relay].
type Relay struct {
	mu sync.Mutex

	// Response is returned by Ask when Err is nil.
	Response string

	// Err, if non-nil, is returned by Ask.
	Err error

	// Calls records every invocation of Ask in order.
	Calls []AskCall
}

var _ relay.Relay = (*Relay)(nil)

// Ask implements [relay.Relay].
func (r *Relay) Ask(ctx context.Context, prompt string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, AskCall{Ctx: ctx, Prompt: prompt})
	if r.Err != nil {
		return "", r.Err
	}
	return r.Response, nil
}

// CallCount returns the number of Ask invocations.
func (r *Relay) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Calls)
}

// Prompts returns the prompts passed to Ask, in order.
func (r *Relay) Prompts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Calls))
	for i, c := range r.Calls {
		out[i] = c.Prompt
	}
	return out
}
