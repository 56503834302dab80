// Package mock provides a test double for the executor.Executor interface.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/mira/pkg/provider/executor"
)

// Executor is a mock implementation of [executor.Executor].
type Executor struct {
	mu sync.Mutex

	// Err, if non-nil, is returned by every Execute call.
	Err error

	// Unavailable lists actions that fail with [executor.ErrUnavailable].
	Unavailable []string

	// Actions records every action passed to Execute, in order.
	Actions []string
}

var _ executor.Executor = (*Executor)(nil)

// Execute implements [executor.Executor].
func (e *Executor) Execute(_ context.Context, action string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Actions = append(e.Actions, action)
	if e.Err != nil {
		return e.Err
	}
	for _, a := range e.Unavailable {
		if a == action {
			return fmt.Errorf("mock executor: %q: %w", action, executor.ErrUnavailable)
		}
	}
	return nil
}

// Calls returns a copy of the recorded actions.
func (e *Executor) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.Actions...)
}
