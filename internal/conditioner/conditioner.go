// Package conditioner gates captured audio before it reaches the recognizer.
//
// Each frame is passed through a single-pole high-pass filter that removes
// low-frequency rumble (fans, motors) and then classified as voiced or
// unvoiced by comparing its RMS energy against a fixed threshold. Only voiced
// frames are worth the cost of recognition.
//
// A [Conditioner] carries filter state across frames and therefore belongs to
// exactly one audio stream. It is not safe for concurrent use.
package conditioner

import (
	"errors"
	"fmt"
	"math"

	"github.com/MrWong99/mira/pkg/audio"
)

// ErrInvalidFrame is returned by [Conditioner.Condition] for empty frames and
// frames whose sample rate does not match the configured rate.
var ErrInvalidFrame = errors.New("conditioner: invalid frame")

// Defaults matching the reference capture setup.
const (
	DefaultSampleRate = 16000
	DefaultCutoffHz   = 200.0
	DefaultThreshold  = 350.0
)

// Config holds the fixed parameters of a [Conditioner].
type Config struct {
	// SampleRate of incoming frames in Hz.
	SampleRate int

	// CutoffHz is the high-pass filter cutoff frequency.
	CutoffHz float64

	// Threshold is the RMS level a filtered frame must exceed to count as
	// voiced, in int16 sample units.
	Threshold float64
}

// Validate reports whether the configuration can build a stable filter.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rate must be positive, got %d", c.SampleRate))
	}
	if c.CutoffHz <= 0 {
		errs = append(errs, fmt.Errorf("cutoff must be positive, got %g", c.CutoffHz))
	} else if c.SampleRate > 0 && c.CutoffHz >= float64(c.SampleRate)/2 {
		errs = append(errs, fmt.Errorf("cutoff %gHz must be below the Nyquist frequency %gHz", c.CutoffHz, float64(c.SampleRate)/2))
	}
	if c.Threshold < 0 || math.IsNaN(c.Threshold) {
		errs = append(errs, fmt.Errorf("threshold must be non-negative, got %g", c.Threshold))
	}
	return errors.Join(errs...)
}

// Result is the outcome of conditioning one frame.
type Result struct {
	// Samples is the high-pass filtered frame.
	Samples []int16

	// RMS is the root-mean-square energy of Samples.
	RMS float64

	// Voiced is true when RMS exceeds the configured threshold.
	Voiced bool
}

// Conditioner applies the high-pass filter and voice-activity gate.
type Conditioner struct {
	cfg    Config
	filter *HighPassFilter
}

// New creates a [Conditioner] with zeroed filter state.
func New(cfg Config) (*Conditioner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("conditioner: %w", err)
	}
	return &Conditioner{
		cfg:    cfg,
		filter: NewHighPassFilter(cfg.CutoffHz, float64(cfg.SampleRate)),
	}, nil
}

// Config returns the configuration the conditioner was built with.
func (c *Conditioner) Config() Config { return c.cfg }

// Condition filters frame and classifies it. The filter state advances even
// when the frame turns out to be unvoiced.
func (c *Conditioner) Condition(frame audio.Frame) (Result, error) {
	if len(frame.Samples) == 0 {
		return Result{}, fmt.Errorf("%w: empty frame", ErrInvalidFrame)
	}
	if frame.SampleRate != 0 && frame.SampleRate != c.cfg.SampleRate {
		return Result{}, fmt.Errorf("%w: sample rate %d, want %d", ErrInvalidFrame, frame.SampleRate, c.cfg.SampleRate)
	}

	out := make([]int16, len(frame.Samples))
	c.filter.Apply(frame.Samples, out)
	rms := RMS(out)
	return Result{
		Samples: out,
		RMS:     rms,
		Voiced:  rms > c.cfg.Threshold,
	}, nil
}

// Reset zeroes the filter state, e.g. when a new stream starts.
func (c *Conditioner) Reset() { c.filter.Reset() }
