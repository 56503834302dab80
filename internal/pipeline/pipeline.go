// Package pipeline runs the capture loop: read a frame, condition it, feed
// voiced audio to the recognizer, and route every finished transcript.
//
// The loop is strictly sequential. The high-pass filter state and the
// recognizer session belong to the [Pipeline] and are never touched by other
// goroutines, so frames are processed in the order the source delivers them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/mira/internal/conditioner"
	"github.com/MrWong99/mira/internal/dispatch"
	"github.com/MrWong99/mira/internal/health"
	"github.com/MrWong99/mira/internal/jsonfield"
	"github.com/MrWong99/mira/internal/observe"
	"github.com/MrWong99/mira/pkg/audio"
	"github.com/MrWong99/mira/pkg/provider/recognizer"
)

const (
	// DefaultFlushTimeout bounds the final recognition pass on shutdown.
	DefaultFlushTimeout = 5 * time.Second

	// DefaultMaxReadErrors is the number of consecutive failed reads, other
	// than overflows, after which Run gives up.
	DefaultMaxReadErrors = 50
)

// ErrSourceFailed is returned by [Pipeline.Run] when the source keeps
// failing.
var ErrSourceFailed = errors.New("pipeline: audio source failed repeatedly")

// Router handles finished transcripts.
type Router interface {
	Route(ctx context.Context, transcript string) dispatch.Outcome
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithMetrics records frame and recognizer metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithFlushTimeout overrides [DefaultFlushTimeout].
func WithFlushTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.flushTimeout = d
		}
	}
}

// WithMaxReadErrors overrides [DefaultMaxReadErrors].
func WithMaxReadErrors(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxReadErrors = n
		}
	}
}

// WithReadyFlag sets flag while Run is looping.
func WithReadyFlag(flag *health.Flag) Option {
	return func(p *Pipeline) { p.ready = flag }
}

// Pipeline owns one audio stream and its recognizer session.
type Pipeline struct {
	source     audio.Source
	cond       *conditioner.Conditioner
	recognizer recognizer.Recognizer
	router     Router

	metrics       *observe.Metrics
	ready         *health.Flag
	flushTimeout  time.Duration
	maxReadErrors int

	voiced bool
}

// New creates a [Pipeline]. It does not take ownership of its collaborators;
// the caller closes them after Run returns.
func New(src audio.Source, cond *conditioner.Conditioner, rec recognizer.Recognizer, router Router, opts ...Option) (*Pipeline, error) {
	switch {
	case src == nil:
		return nil, errors.New("pipeline: source must not be nil")
	case cond == nil:
		return nil, errors.New("pipeline: conditioner must not be nil")
	case rec == nil:
		return nil, errors.New("pipeline: recognizer must not be nil")
	case router == nil:
		return nil, errors.New("pipeline: router must not be nil")
	}
	p := &Pipeline{
		source:        src,
		cond:          cond,
		recognizer:    rec,
		router:        router,
		flushTimeout:  DefaultFlushTimeout,
		maxReadErrors: DefaultMaxReadErrors,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Run processes frames until ctx is cancelled or the source is exhausted,
// then performs one final recognition pass and routes its transcript.
//
// Cancellation is observed after each read returns; a read in progress is
// not interrupted by the pipeline itself. Cancellation and io.EOF end the run
// cleanly with a nil error.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.ready != nil {
		p.ready.Set(true)
		defer p.ready.Set(false)
	}
	defer p.flush(ctx)

	observe.Logger(ctx).Info("pipeline: started", "format", p.source.Format().String())
	p.cond.Reset()
	failures := 0
	for {
		frame, readErr := p.source.ReadFrame(ctx)
		if ctx.Err() != nil {
			observe.Logger(ctx).Info("pipeline: stopping", "reason", context.Cause(ctx))
			return nil
		}

		switch {
		case readErr == nil:
			failures = 0
		case errors.Is(readErr, io.EOF):
			observe.Logger(ctx).Info("pipeline: source exhausted")
			return nil
		case errors.Is(readErr, audio.ErrOverflow):
			failures = 0
			p.readError(ctx, "overflow", readErr)
			if len(frame.Samples) == 0 {
				continue
			}
			// Samples were dropped before this frame; the filter history no
			// longer lines up with it.
			p.cond.Reset()
		default:
			failures++
			p.readError(ctx, "read", readErr)
			if failures >= p.maxReadErrors {
				return fmt.Errorf("%w: %w", ErrSourceFailed, readErr)
			}
			continue
		}

		p.process(ctx, frame)
	}
}

func (p *Pipeline) readError(ctx context.Context, kind string, err error) {
	observe.Logger(ctx).Warn("pipeline: frame read failed", "kind", kind, "err", err)
	if p.metrics != nil {
		p.metrics.RecordReadError(ctx, kind)
	}
}

// process handles one frame.
func (p *Pipeline) process(ctx context.Context, frame audio.Frame) {
	res, err := p.cond.Condition(frame)
	if err != nil {
		observe.Logger(ctx).Warn("pipeline: frame skipped", "err", err)
		return
	}
	if p.metrics != nil {
		p.metrics.RecordFrame(ctx, res.Voiced, res.RMS)
	}

	var ready bool
	if res.Voiced {
		start := time.Now()
		ready, err = p.recognizer.AcceptFrame(ctx, res.Samples)
		if p.metrics != nil {
			p.metrics.RecognizerDuration.Record(ctx, time.Since(start).Seconds())
		}
	} else {
		if p.voiced {
			p.logPartial(ctx)
		}
		if ep, ok := p.recognizer.(recognizer.Endpointer); ok {
			ready, err = ep.Silence(ctx, p.frameDuration(frame))
		}
	}
	p.voiced = res.Voiced
	if err != nil {
		observe.Logger(ctx).Warn("pipeline: recognizer rejected frame", "err", err)
		return
	}
	if ready {
		p.deliver(ctx, p.recognizer.Result())
	}
}

func (p *Pipeline) frameDuration(frame audio.Frame) time.Duration {
	if frame.SampleRate > 0 {
		return frame.Duration()
	}
	return time.Duration(len(frame.Samples)) * time.Second / time.Duration(p.cond.Config().SampleRate)
}

func (p *Pipeline) logPartial(ctx context.Context) {
	if partial, ok := jsonfield.Extract(p.recognizer.PartialResult(), "partial"); ok && partial != "" {
		observe.Logger(ctx).Debug("pipeline: partial transcript", "partial", partial)
	}
}

// deliver extracts the transcript from a recognizer result and routes it. A
// document without a string "text" field counts as an empty transcript.
func (p *Pipeline) deliver(ctx context.Context, doc string) dispatch.Outcome {
	text, ok := jsonfield.Extract(doc, "text")
	if !ok {
		observe.Logger(ctx).Warn("pipeline: result without text field", "result", doc)
	}

	ctx, span := observe.StartSpan(ctx, "pipeline.route")
	defer span.End()
	out := p.router.Route(ctx, text)
	span.SetAttributes(
		attribute.String("dispatch.state", out.State.String()),
		attribute.String("command", out.Match.ID.String()),
	)
	if out.Err != nil {
		span.RecordError(out.Err, trace.WithAttributes(attribute.Bool("fatal", false)))
	}
	return out
}

// flush forces recognition of buffered audio and routes the result. It runs
// on a context detached from ctx's cancellation so shutdown can still reach
// the recognizer and the dispatch targets.
func (p *Pipeline) flush(ctx context.Context) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.flushTimeout)
	defer cancel()

	doc := p.recognizer.FinalResult(fctx)
	if text, _ := jsonfield.Extract(doc, "text"); text == "" {
		observe.Logger(ctx).Debug("pipeline: final flush produced no transcript")
		return
	}
	observe.Logger(ctx).Info("pipeline: routing final transcript")
	p.deliver(fctx, doc)
}
