// Package observe holds mira's telemetry: OpenTelemetry metric instruments,
// tracing helpers, trace-aware logging, and the HTTP middleware used by the
// ops server.
//
// [InitProvider] installs SDK providers whose metrics are bridged to
// Prometheus. Components receive a [*Metrics] explicitly; tests build one with
// [NewMetrics] over a private meter provider.
package observe

import (
	"context"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of every mira instrument.
const meterName = "github.com/MrWong99/mira"

// Metrics holds the application's instruments.
type Metrics struct {
	// Frames counts conditioned frames, attribute "voiced".
	Frames metric.Int64Counter

	// FrameRMS records the RMS energy of every conditioned frame.
	FrameRMS metric.Float64Histogram

	// RecognizerDuration tracks how long the recognizer takes to accept a
	// voiced frame, including any decode it triggers.
	RecognizerDuration metric.Float64Histogram

	// RelayDuration tracks fallback relay round trips.
	RelayDuration metric.Float64Histogram

	// Dispatch counts routed transcripts, attributes "state" and "command".
	Dispatch metric.Int64Counter

	// DispatchErrors counts failed executor or relay calls, attribute "kind".
	DispatchErrors metric.Int64Counter

	// ReadErrors counts frame source errors, attribute "kind".
	ReadErrors metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes, attributes
	// "name" and "to".
	BreakerTransitions metric.Int64Counter

	// HTTPRequestDuration tracks ops server requests.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds, sized for local
// speech decoding and small-model round trips.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// rmsBuckets cover the PCM16 amplitude range around the usual voice
// threshold.
var rmsBuckets = []float64{
	25, 50, 100, 200, 350, 500, 1000, 2000, 4000, 8000, 16000,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Frames, err = m.Int64Counter("mira.frames",
		metric.WithDescription("Conditioned audio frames by voice activity."),
	); err != nil {
		return nil, err
	}
	if met.FrameRMS, err = m.Float64Histogram("mira.frame.rms",
		metric.WithDescription("RMS energy of high-pass filtered frames."),
		metric.WithExplicitBucketBoundaries(rmsBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RecognizerDuration, err = m.Float64Histogram("mira.recognizer.duration",
		metric.WithDescription("Latency of feeding one voiced frame to the recognizer."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RelayDuration, err = m.Float64Histogram("mira.relay.duration",
		metric.WithDescription("Latency of fallback relay requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Dispatch, err = m.Int64Counter("mira.dispatch",
		metric.WithDescription("Routed transcripts by final state and command."),
	); err != nil {
		return nil, err
	}
	if met.DispatchErrors, err = m.Int64Counter("mira.dispatch.errors",
		metric.WithDescription("Failed executor and relay calls by kind."),
	); err != nil {
		return nil, err
	}
	if met.ReadErrors, err = m.Int64Counter("mira.read.errors",
		metric.WithDescription("Audio source read errors by kind."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("mira.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes by breaker and target state."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("mira.http.request.duration",
		metric.WithDescription("Ops server request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a process-wide [Metrics] built on the global meter
// provider. It panics if instrument creation fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordFrame counts one conditioned frame and records its energy.
func (m *Metrics) RecordFrame(ctx context.Context, voiced bool, rms float64) {
	m.Frames.Add(ctx, 1, metric.WithAttributes(attribute.String("voiced", strconv.FormatBool(voiced))))
	m.FrameRMS.Record(ctx, rms)
}

// RecordDispatch counts one routed transcript.
func (m *Metrics) RecordDispatch(ctx context.Context, state, command string) {
	m.Dispatch.Add(ctx, 1, metric.WithAttributes(
		attribute.String("state", state),
		attribute.String("command", command),
	))
}

// RecordDispatchError counts one failed executor or relay call.
func (m *Metrics) RecordDispatchError(ctx context.Context, kind string) {
	m.DispatchErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordReadError counts one frame source error.
func (m *Metrics) RecordReadError(ctx context.Context, kind string) {
	m.ReadErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordBreakerTransition counts one circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, name, to string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("name", name),
		attribute.String("to", to),
	))
}
