// Package mock provides a scripted test double for recognizer.Recognizer.
//
// Each AcceptFrame call consumes the next entry of Script: a non-empty entry
// completes an utterance with that text, an empty entry means "keep
// listening". Every accepted frame is recorded so tests can assert which
// audio reached the engine.
//
// Example:
//
//	r := &mock.Recognizer{Script: []string{"", "avance"}}
//	ready, _ := r.AcceptFrame(ctx, frame1) // false
//	ready, _ = r.AcceptFrame(ctx, frame2)  // true
//	r.Result()                             // {"text": "avance"}
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/mira/pkg/provider/recognizer"
)

// Recognizer is a mock implementation of [recognizer.Recognizer] and
// [recognizer.Endpointer].
type Recognizer struct {
	mu sync.Mutex

	// Script is consumed one entry per AcceptFrame call.
	Script []string

	// SilenceScript is consumed one entry per Silence call, with the same
	// meaning as Script.
	SilenceScript []string

	// RawResults, when non-empty, are returned verbatim by Result in order
	// instead of the JSON built from Script. Use it to inject malformed
	// documents.
	RawResults []string

	// Final is the text returned by FinalResult.
	Final string

	// Partial is the text returned by PartialResult.
	Partial string

	// AcceptErr, if non-nil, is returned by every AcceptFrame call.
	AcceptErr error

	// --- Call records ---

	// Frames records the samples passed to each AcceptFrame call.
	Frames [][]int16

	// Silences records the durations passed to Silence.
	Silences []time.Duration

	// CallCountResult records how many times Result was called.
	CallCountResult int

	// CallCountFinalResult records how many times FinalResult was called.
	CallCountFinalResult int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	pending string
	ready   bool
}

var (
	_ recognizer.Recognizer = (*Recognizer)(nil)
	_ recognizer.Endpointer = (*Recognizer)(nil)
)

// AcceptFrame implements [recognizer.Recognizer].
func (r *Recognizer) AcceptFrame(_ context.Context, samples []int16) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]int16, len(samples))
	copy(cp, samples)
	r.Frames = append(r.Frames, cp)
	if r.AcceptErr != nil {
		return false, r.AcceptErr
	}
	return r.advance(&r.Script), nil
}

// Silence implements [recognizer.Endpointer].
func (r *Recognizer) Silence(_ context.Context, d time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Silences = append(r.Silences, d)
	return r.advance(&r.SilenceScript), nil
}

func (r *Recognizer) advance(script *[]string) bool {
	if len(*script) == 0 {
		return false
	}
	next := (*script)[0]
	*script = (*script)[1:]
	if next == "" {
		return false
	}
	r.pending = next
	r.ready = true
	return true
}

// Result implements [recognizer.Recognizer].
func (r *Recognizer) Result() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CallCountResult++
	if len(r.RawResults) > 0 {
		raw := r.RawResults[0]
		r.RawResults = r.RawResults[1:]
		return raw
	}
	if !r.ready {
		return recognizer.Empty
	}
	r.ready = false
	return recognizer.FormatResult("text", r.pending)
}

// PartialResult implements [recognizer.Recognizer].
func (r *Recognizer) PartialResult() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return recognizer.FormatResult("partial", r.Partial)
}

// FinalResult implements [recognizer.Recognizer].
func (r *Recognizer) FinalResult(_ context.Context) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CallCountFinalResult++
	return recognizer.FormatResult("text", r.Final)
}

// Close implements [recognizer.Recognizer].
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CallCountClose++
	return nil
}

// FrameCount returns the number of AcceptFrame calls so far.
func (r *Recognizer) FrameCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Frames)
}
