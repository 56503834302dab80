// Package audio defines the frame type and frame-source contract shared by the
// capture backends and the processing pipeline.
//
// A [Source] delivers fixed-length mono frames of signed 16-bit PCM at the
// sample rate agreed at setup. Implementations live in sub-packages
// (portaudio) or in this package ([WAVSource]); tests use the mock package.
package audio

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrOverflow is returned by [Source.ReadFrame] when the capture backend
// dropped input because it was not read fast enough. The frame returned with
// it is still valid; callers treat the condition as non-fatal.
var ErrOverflow = errors.New("audio: input overflow")

// Frame is a single block of mono PCM audio.
type Frame struct {
	// Samples holds signed 16-bit PCM samples. The slice is owned by the
	// receiver once returned from ReadFrame.
	Samples []int16

	// SampleRate in Hz (e.g. 16000).
	SampleRate int

	// Timestamp marks the start of this frame relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback length of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// Format describes the sample rate, channel count, and frame length of a
// stream.
type Format struct {
	SampleRate int
	Channels   int

	// FrameSize is the number of samples per frame (per channel).
	FrameSize int
}

// String returns a human-readable description, e.g. "16000Hz mono/4000".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s/%d", f.SampleRate, ch, f.FrameSize)
}

// Source is a blocking producer of audio frames.
//
// Implementations must be safe to Close from a different goroutine than the
// one calling ReadFrame; a ReadFrame in progress may complete before Close
// takes effect.
type Source interface {
	// ReadFrame blocks until the next frame is available. It returns
	// [ErrOverflow] together with a valid frame when input was dropped, and
	// io.EOF when a finite source is exhausted.
	ReadFrame(ctx context.Context) (Frame, error)

	// Format reports the format of frames produced by ReadFrame.
	Format() Format

	// Close releases the underlying device or file.
	Close() error
}
