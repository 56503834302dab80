// Package whisper adapts whisper.cpp to the [recognizer.Recognizer] contract.
//
// whisper.cpp is a batch engine: it transcribes a complete utterance at once.
// The adapter buffers voiced frames pushed with AcceptFrame and decodes them
// when the pipeline reports enough trailing silence through
// [recognizer.Endpointer], or when the buffer reaches the maximum utterance
// length. Two backends are available:
//
//   - [NewServer] posts each utterance as a WAV upload to a running
//     whisper-server (POST /inference).
//   - [NewNative] runs inference in-process through the whisper.cpp CGO
//     bindings. libwhisper.a and whisper.h must be available at link time.
//
// Usage:
//
//	r, err := whisper.NewServer("http://localhost:8080",
//	    whisper.WithLanguage("fr"),
//	    whisper.WithSilenceDuration(700*time.Millisecond),
//	)
package whisper

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/mira/pkg/provider/recognizer"
)

const (
	defaultLanguage        = "fr"
	defaultSampleRate      = 16000
	defaultSilenceDuration = 700 * time.Millisecond
	defaultMaxUtterance    = 10 * time.Second
	defaultRequestTimeout  = 30 * time.Second
)

// Option configures a whisper [Recognizer].
type Option func(*options)

type options struct {
	language        string
	sampleRate      int
	silenceDuration time.Duration
	maxUtterance    time.Duration
	model           string
	requestTimeout  time.Duration
}

func defaultOptions() options {
	return options{
		language:        defaultLanguage,
		sampleRate:      defaultSampleRate,
		silenceDuration: defaultSilenceDuration,
		maxUtterance:    defaultMaxUtterance,
		requestTimeout:  defaultRequestTimeout,
	}
}

// WithLanguage sets the recognition language code (e.g. "fr", "en").
// Defaults to "fr".
func WithLanguage(lang string) Option {
	return func(o *options) {
		if lang != "" {
			o.language = lang
		}
	}
}

// WithSampleRate sets the sample rate of frames passed to AcceptFrame.
// whisper.cpp expects 16 kHz; other rates are resampled before inference.
func WithSampleRate(rate int) Option {
	return func(o *options) {
		if rate > 0 {
			o.sampleRate = rate
		}
	}
}

// WithSilenceDuration sets how much trailing silence closes an utterance.
// Defaults to 700ms.
func WithSilenceDuration(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.silenceDuration = d
		}
	}
}

// WithMaxUtterance bounds the buffered speech; reaching it forces a decode.
// Defaults to 10s.
func WithMaxUtterance(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.maxUtterance = d
		}
	}
}

// WithModel sets the model name forwarded to whisper-server. Ignored by the
// native backend.
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

// WithRequestTimeout bounds each whisper-server request. Ignored by the
// native backend. Defaults to 30s.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.requestTimeout = d
		}
	}
}

// transcriber decodes one utterance of 16 kHz mono PCM.
type transcriber interface {
	transcribe(ctx context.Context, samples []int16) (string, error)
	close() error
}

// Recognizer buffers utterances and decodes them with a whisper backend.
type Recognizer struct {
	opts    options
	backend transcriber

	buffer    []int16
	hadSpeech bool
	silence   time.Duration
	maxLen    int

	pending string
	ready   bool
	closed  bool
}

var (
	_ recognizer.Recognizer = (*Recognizer)(nil)
	_ recognizer.Endpointer = (*Recognizer)(nil)
)

func newRecognizer(backend transcriber, opts options) *Recognizer {
	return &Recognizer{
		opts:    opts,
		backend: backend,
		maxLen:  int(opts.maxUtterance.Seconds() * float64(opts.sampleRate)),
	}
}

// AcceptFrame buffers voiced samples. It decodes and returns true when the
// buffer reaches the maximum utterance length and the decode yields text.
func (r *Recognizer) AcceptFrame(ctx context.Context, samples []int16) (bool, error) {
	if r.closed {
		return false, recognizer.ErrClosed
	}
	r.buffer = append(r.buffer, samples...)
	r.hadSpeech = true
	r.silence = 0
	if r.maxLen > 0 && len(r.buffer) >= r.maxLen {
		return r.decode(ctx)
	}
	return false, nil
}

// Silence implements [recognizer.Endpointer]. Silence before any speech is
// ignored.
func (r *Recognizer) Silence(ctx context.Context, d time.Duration) (bool, error) {
	if r.closed {
		return false, recognizer.ErrClosed
	}
	if !r.hadSpeech {
		return false, nil
	}
	r.silence += d
	if r.silence < r.opts.silenceDuration {
		return false, nil
	}
	return r.decode(ctx)
}

// decode transcribes and clears the buffer. The buffer is dropped even when
// transcription fails.
func (r *Recognizer) decode(ctx context.Context) (bool, error) {
	samples := r.buffer
	r.buffer = nil
	r.hadSpeech = false
	r.silence = 0
	if len(samples) == 0 {
		return false, nil
	}

	text, err := r.backend.transcribe(ctx, samples)
	if err != nil {
		return false, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return false, nil
	}
	if r.ready {
		text = r.pending + " " + text
	}
	r.pending = text
	r.ready = true
	return true, nil
}

// Result implements [recognizer.Recognizer].
func (r *Recognizer) Result() string {
	if !r.ready {
		return recognizer.Empty
	}
	text := r.pending
	r.pending = ""
	r.ready = false
	return recognizer.FormatResult("text", text)
}

// PartialResult implements [recognizer.Recognizer]. whisper.cpp has no
// incremental hypotheses, so the partial is always empty.
func (r *Recognizer) PartialResult() string {
	return recognizer.FormatResult("partial", "")
}

// FinalResult decodes whatever speech is still buffered and returns it along
// with any unread result. Decode errors are logged and yield an empty text.
func (r *Recognizer) FinalResult(ctx context.Context) string {
	if r.closed {
		return recognizer.Empty
	}
	if r.hadSpeech {
		if _, err := r.decode(ctx); err != nil {
			slog.Warn("whisper: final decode failed", "error", err)
		}
	}
	return r.Result()
}

// Close releases the backend. Calling Close more than once is safe.
func (r *Recognizer) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.buffer = nil
	return r.backend.close()
}

// errEmptyArg is wrapped by constructors for missing required arguments.
var errEmptyArg = errors.New("must not be empty")
