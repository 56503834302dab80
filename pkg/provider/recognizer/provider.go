// Package recognizer defines the interface between the audio pipeline and a
// speech-to-text engine.
//
// The contract follows the pull model of offline decoders: the pipeline pushes
// PCM frames with AcceptFrame, which reports when a complete utterance has
// been decoded, and then pulls the result as a small JSON document of the form
// {"text": "..."}. Engines that decide utterance boundaries themselves
// (streaming decoders) need nothing more. Engines that decode whole
// utterances in one batch additionally implement [Endpointer] so the pipeline
// can tell them about silence without pushing unvoiced audio.
//
// A Recognizer session is owned by a single pipeline goroutine; implementations
// need not be safe for concurrent use.
package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ErrClosed is returned by AcceptFrame after Close.
var ErrClosed = errors.New("recognizer: closed")

// Recognizer is one recognition session.
type Recognizer interface {
	// AcceptFrame feeds mono int16 PCM at the session's sample rate. It
	// returns true when a final result is ready to be read with Result.
	AcceptFrame(ctx context.Context, samples []int16) (bool, error)

	// Result returns the most recent final result as {"text": "..."} and
	// clears it. It returns {"text": ""} when nothing is pending.
	Result() string

	// PartialResult returns the in-progress hypothesis as
	// {"partial": "..."}. Engines without partial hypotheses return an empty
	// partial.
	PartialResult() string

	// FinalResult forces recognition of any buffered audio and returns the
	// result as {"text": "..."}. It is called once when the pipeline stops.
	FinalResult(ctx context.Context) string

	// Close releases the session and any model resources it owns.
	Close() error
}

// Endpointer is implemented by recognizers that need to be told about
// unvoiced audio to close an utterance.
type Endpointer interface {
	// Silence reports d of unvoiced audio following the last accepted frame.
	// It returns true when this completes an utterance and a result is ready.
	Silence(ctx context.Context, d time.Duration) (bool, error)
}

// FormatResult encodes text under key as a one-field JSON object, e.g.
// FormatResult("text", "avance") == `{"text": "avance"}`.
func FormatResult(key, text string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encoding a string cannot fail.
	_ = enc.Encode(text)
	return `{"` + key + `": ` + strings.TrimSuffix(buf.String(), "\n") + `}`
}

// Empty is the result returned when no transcript is available.
var Empty = FormatResult("text", "")
