// Package mock provides an in-memory [audio.Source] for unit tests.
//
// The mock replays a scripted list of frames (optionally paired with errors)
// and records how many times each method was called.
//
// Typical usage:
//
//	src := &mock.Source{
//	    Steps: []mock.Step{
//	        {Frame: audio.Frame{Samples: speech, SampleRate: 16000}},
//	        {Frame: audio.Frame{Samples: noise, SampleRate: 16000}, Err: audio.ErrOverflow},
//	    },
//	}
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/MrWong99/mira/pkg/audio"
)

// Step is one scripted ReadFrame result.
type Step struct {
	Frame audio.Frame
	Err   error

	// Before, if non-nil, runs before the step is returned. Tests use it to
	// cancel a context between reads.
	Before func()
}

// Source is a mock implementation of [audio.Source]. When the script is
// exhausted ReadFrame returns io.EOF, or blocks until ctx is done if Block
// is set.
type Source struct {
	mu sync.Mutex

	// Steps are returned in order by ReadFrame.
	Steps []Step

	// Block makes ReadFrame wait for ctx cancellation after the script ends.
	Block bool

	// FormatResult is returned by Format.
	FormatResult audio.Format

	// CloseError is returned by Close.
	CloseError error

	// CallCountReadFrame records how many times ReadFrame was called.
	CallCountReadFrame int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	next int
}

var _ audio.Source = (*Source)(nil)

// ReadFrame implements [audio.Source].
func (s *Source) ReadFrame(ctx context.Context) (audio.Frame, error) {
	s.mu.Lock()
	s.CallCountReadFrame++
	if s.next >= len(s.Steps) {
		block := s.Block
		s.mu.Unlock()
		if block {
			<-ctx.Done()
			return audio.Frame{}, ctx.Err()
		}
		return audio.Frame{}, io.EOF
	}
	step := s.Steps[s.next]
	s.next++
	s.mu.Unlock()

	if step.Before != nil {
		step.Before()
	}
	return step.Frame, step.Err
}

// Format implements [audio.Source].
func (s *Source) Format() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FormatResult
}

// Close implements [audio.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	return s.CloseError
}

// Reads returns the number of ReadFrame calls so far.
func (s *Source) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountReadFrame
}
