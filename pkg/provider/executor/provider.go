// Package executor defines the sink for matched voice commands.
//
// An Executor turns an action name such as "AVANCER" into a side effect on
// the robot: starting a script, publishing a message, and so on. Execute
// returns once the action has been handed off; it does not wait for the
// robot to finish moving.
//
// Implementations must be safe for concurrent use.
package executor

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the executor has no way to perform the
// requested action.
var ErrUnavailable = errors.New("executor: action unavailable")

// Executor performs named actions.
type Executor interface {
	// Execute hands action off for execution. An action the executor does
	// not know, or cannot currently perform, yields an error wrapping
	// [ErrUnavailable].
	Execute(ctx context.Context, action string) error
}

// Func adapts an ordinary function to the [Executor] interface.
type Func func(ctx context.Context, action string) error

// Execute implements [Executor].
func (f Func) Execute(ctx context.Context, action string) error {
	return f(ctx, action)
}
