// Package dispatch decides what happens to one transcript.
//
// A [Router] normalizes the transcript, fuzzy-matches it against the command
// table, and then either hands the command's action to an executor or
// forwards the original text to the fallback relay. Every transcript gets at
// most one dispatch attempt and no failure ever escapes [Router.Route]:
// errors are logged, counted, and reported in the returned [Outcome].
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/mira/internal/command"
	"github.com/MrWong99/mira/internal/observe"
	"github.com/MrWong99/mira/pkg/provider/executor"
	"github.com/MrWong99/mira/pkg/provider/relay"
)

var (
	// ErrNoAction is reported when a matched command has no action mapped.
	ErrNoAction = errors.New("dispatch: no action for command")

	// ErrNoRelay is reported for an unmatched transcript when no fallback
	// relay is configured.
	ErrNoRelay = errors.New("dispatch: no fallback relay configured")
)

// State is a step of the per-transcript state machine.
type State int

const (
	// StateReceived is the initial state of every transcript.
	StateReceived State = iota
	// StateMatched means a known command was recognized.
	StateMatched
	// StateUnmatched means the transcript goes to the fallback relay.
	StateUnmatched
	// StateDispatched is terminal: the executor or relay was invoked.
	StateDispatched
	// StateSkipped is terminal: the transcript was blank.
	StateSkipped
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateMatched:
		return "matched"
	case StateUnmatched:
		return "unmatched"
	case StateDispatched:
		return "dispatched"
	case StateSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Action names an executor capability, such as "AVANCER".
type Action string

// DefaultActions returns the stock command → action map.
func DefaultActions() map[command.ID]Action {
	return map[command.ID]Action{
		command.Droite45:  "DROITE_45",
		command.Gauche45:  "GAUCHE_45",
		command.Stop:      "STOP",
		command.Avance:    "AVANCER",
		command.Recule:    "RECULER",
		command.Position:  "POSITION",
		command.Scanne:    "SCANNE",
		command.Autopilot: "AUTOPILOT",
	}
}

// Outcome describes how one transcript was handled.
type Outcome struct {
	// State is terminal: [StateDispatched] or [StateSkipped].
	State State
	// Path lists every state visited, starting with [StateReceived].
	Path []State

	Transcript string
	Normalized string
	Match      command.Match
	Action     Action

	// Response is the relay's answer for unmatched transcripts.
	Response string

	// Err is the non-fatal dispatch failure, if any.
	Err error
}

// Fallback reports whether the transcript was routed to the relay.
func (o Outcome) Fallback() bool {
	for _, s := range o.Path {
		if s == StateUnmatched {
			return true
		}
	}
	return false
}

func (o *Outcome) advance(s State) {
	o.State = s
	o.Path = append(o.Path, s)
}

// Normalizer canonicalizes transcripts.
type Normalizer interface {
	Normalize(raw string) string
}

// Matcher scores normalized text against the command table.
type Matcher interface {
	Match(text string) command.Match
}

// diagnoser is implemented by matchers that can name the closest entry of an
// unmatched transcript.
type diagnoser interface {
	Nearest(text string) (command.Entry, float64, bool)
}

// ResponseHandler receives every successful relay answer.
type ResponseHandler func(ctx context.Context, prompt, response string)

// Option configures a [Router].
type Option func(*Router)

// WithActions replaces [DefaultActions].
func WithActions(actions map[command.ID]Action) Option {
	return func(r *Router) { r.actions = maps.Clone(actions) }
}

// WithMetrics records dispatch counters and relay latency.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// WithResponseHandler registers a callback for relay answers.
func WithResponseHandler(h ResponseHandler) Option {
	return func(r *Router) { r.onResponse = h }
}

// Router routes transcripts. It holds no per-transcript state and is safe for
// concurrent use when its collaborators are.
type Router struct {
	matcher    Matcher
	normalizer Normalizer
	exec       executor.Executor
	relay      relay.Relay
	actions    map[command.ID]Action
	metrics    *observe.Metrics
	onResponse ResponseHandler
}

// NewRouter creates a [Router]. rel may be nil, in which case unmatched
// transcripts are reported with [ErrNoRelay].
func NewRouter(m Matcher, n Normalizer, exec executor.Executor, rel relay.Relay, opts ...Option) (*Router, error) {
	if m == nil {
		return nil, errors.New("dispatch: matcher must not be nil")
	}
	if n == nil {
		return nil, errors.New("dispatch: normalizer must not be nil")
	}
	if exec == nil {
		return nil, errors.New("dispatch: executor must not be nil")
	}
	r := &Router{
		matcher:    m,
		normalizer: n,
		exec:       exec,
		relay:      rel,
		actions:    DefaultActions(),
	}
	for _, o := range opts {
		o(r)
	}
	if _, ok := r.actions[command.Unknown]; ok {
		return nil, fmt.Errorf("dispatch: %s cannot be mapped to an action", command.Unknown)
	}
	for id, a := range r.actions {
		if a == "" {
			return nil, fmt.Errorf("dispatch: empty action for %s", id)
		}
	}
	return r, nil
}

// Route handles one transcript. It blocks for the duration of the relay call
// on unmatched transcripts; executor hand-off does not wait for the action to
// complete.
func (r *Router) Route(ctx context.Context, transcript string) Outcome {
	out := Outcome{Transcript: transcript, Match: command.Match{ID: command.Unknown, Distance: -1}}
	out.advance(StateReceived)

	original := strings.TrimSpace(transcript)
	if original == "" {
		out.advance(StateSkipped)
		r.record(ctx, out)
		return out
	}

	out.Normalized = r.normalizer.Normalize(original)
	out.Match = r.matcher.Match(out.Normalized)
	log := observe.Logger(ctx)

	if out.Match.Matched() {
		out.advance(StateMatched)
		log.Info("dispatch: command matched",
			"transcript", original,
			"normalized", out.Normalized,
			"command", out.Match.ID.String(),
			"phrase", out.Match.Phrase,
			"distance", out.Match.Distance,
		)
		r.execute(ctx, &out)
	} else {
		out.advance(StateUnmatched)
		attrs := []any{"transcript", original, "normalized", out.Normalized}
		if d, ok := r.matcher.(diagnoser); ok {
			if e, score, ok := d.Nearest(out.Normalized); ok {
				attrs = append(attrs, "nearest", e.Phrase, "similarity", score)
			}
		}
		log.Info("dispatch: no command matched, asking relay", attrs...)
		r.ask(ctx, &out, original)
	}

	out.advance(StateDispatched)
	r.record(ctx, out)
	return out
}

func (r *Router) execute(ctx context.Context, out *Outcome) {
	action, ok := r.actions[out.Match.ID]
	if !ok {
		out.Err = fmt.Errorf("%w: %s", ErrNoAction, out.Match.ID)
		r.fail(ctx, "no_action", out.Err)
		return
	}
	out.Action = action
	if err := r.exec.Execute(ctx, string(action)); err != nil {
		out.Err = fmt.Errorf("dispatch: execute %s: %w", action, err)
		kind := "executor"
		if errors.Is(err, executor.ErrUnavailable) {
			kind = "unavailable"
		}
		r.fail(ctx, kind, out.Err)
		return
	}
	observe.Logger(ctx).Debug("dispatch: action handed off", "action", string(action))
}

func (r *Router) ask(ctx context.Context, out *Outcome, prompt string) {
	if r.relay == nil {
		out.Err = ErrNoRelay
		r.fail(ctx, "no_relay", out.Err)
		return
	}

	ctx, span := observe.StartSpan(ctx, "relay.ask",
		trace.WithAttributes(attribute.Int("prompt.length", len(prompt))))
	defer span.End()

	start := time.Now()
	resp, err := r.relay.Ask(ctx, prompt)
	if r.metrics != nil {
		r.metrics.RelayDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		out.Err = fmt.Errorf("dispatch: relay: %w", err)
		r.fail(ctx, "relay", out.Err)
		return
	}

	out.Response = resp
	observe.Logger(ctx).Info("dispatch: relay answered", "prompt", prompt, "response", resp)
	if r.onResponse != nil {
		r.onResponse(ctx, prompt, resp)
	}
}

func (r *Router) fail(ctx context.Context, kind string, err error) {
	observe.Logger(ctx).Warn("dispatch: failed", "kind", kind, "err", err)
	if r.metrics != nil {
		r.metrics.RecordDispatchError(ctx, kind)
	}
}

func (r *Router) record(ctx context.Context, out Outcome) {
	if r.metrics != nil {
		r.metrics.RecordDispatch(ctx, out.State.String(), out.Match.ID.String())
	}
}
