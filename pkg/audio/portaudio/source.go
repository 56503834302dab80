// Package portaudio provides a live microphone [audio.Source] backed by the
// PortAudio C library.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/mira/pkg/audio"
)

// Config describes the capture stream.
type Config struct {
	SampleRate int
	FrameSize  int

	// DeviceHint selects the first input device whose name contains this
	// substring (case-insensitive). Empty, or no match, selects the system
	// default.
	DeviceHint string
}

// Source captures mono int16 frames from an input device. ReadFrame blocks
// for one frame duration; it is not interrupted by context cancellation.
type Source struct {
	cfg    Config
	stream *pa.Stream
	buf    []int16
	read   int64

	closeOnce sync.Once
	closeErr  error
}

var _ audio.Source = (*Source)(nil)

// Open initialises PortAudio, opens the selected input device, and starts the
// stream. The returned Source owns the PortAudio session and terminates it on
// Close.
func Open(cfg Config) (*Source, error) {
	if cfg.SampleRate <= 0 || cfg.FrameSize <= 0 {
		return nil, fmt.Errorf("portaudio: invalid format %dHz/%d", cfg.SampleRate, cfg.FrameSize)
	}
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}

	s := &Source{cfg: cfg, buf: make([]int16, cfg.FrameSize)}
	stream, err := s.openStream()
	if err != nil {
		_ = pa.Terminate()
		return nil, err
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio: start stream: %w", err)
	}
	s.stream = stream
	return s, nil
}

func (s *Source) openStream() (*pa.Stream, error) {
	dev, err := chooseDevice(s.cfg.DeviceHint, pa.Devices)
	if err != nil {
		return nil, err
	}
	if dev == nil {
		stream, err := pa.OpenDefaultStream(1, 0, float64(s.cfg.SampleRate), s.cfg.FrameSize, s.buf)
		if err != nil {
			return nil, fmt.Errorf("portaudio: open default stream: %w", err)
		}
		return stream, nil
	}
	slog.Info("portaudio: using input device", "device", dev.Name)

	p := pa.LowLatencyParameters(dev, nil)
	p.Input.Channels = 1
	p.SampleRate = float64(s.cfg.SampleRate)
	p.FramesPerBuffer = s.cfg.FrameSize
	stream, err := pa.OpenStream(p, s.buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open stream on %q: %w", dev.Name, err)
	}
	return stream, nil
}

// chooseDevice resolves hint against the devices returned by list. A nil
// device means the system default: either no hint was given or nothing
// matched it.
func chooseDevice(hint string, list func() ([]*pa.DeviceInfo, error)) (*pa.DeviceInfo, error) {
	if hint == "" {
		return nil, nil
	}
	devices, err := list()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	dev := pickDevice(devices, hint)
	if dev == nil {
		slog.Warn("portaudio: no input device matches hint, using default", "hint", hint)
	}
	return dev, nil
}

// ReadFrame blocks until a full frame has been captured. An input overflow is
// reported as [audio.ErrOverflow] alongside the frame that was read.
func (s *Source) ReadFrame(ctx context.Context) (audio.Frame, error) {
	if err := ctx.Err(); err != nil {
		return audio.Frame{}, err
	}
	err := s.stream.Read()
	if err != nil && !errors.Is(err, pa.InputOverflowed) {
		return audio.Frame{}, fmt.Errorf("portaudio: read: %w", err)
	}

	out := make([]int16, len(s.buf))
	copy(out, s.buf)
	f := audio.Frame{
		Samples:    out,
		SampleRate: s.cfg.SampleRate,
		Timestamp:  time.Duration(s.read) * time.Second / time.Duration(s.cfg.SampleRate),
	}
	s.read += int64(len(out))

	if err != nil {
		return f, audio.ErrOverflow
	}
	return f, nil
}

// Format implements [audio.Source].
func (s *Source) Format() audio.Format {
	return audio.Format{SampleRate: s.cfg.SampleRate, Channels: 1, FrameSize: s.cfg.FrameSize}
}

// Close stops the stream and terminates PortAudio. Safe to call more than once.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if err := s.stream.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("portaudio: stop: %w", err))
		}
		if err := s.stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("portaudio: close: %w", err))
		}
		if err := pa.Terminate(); err != nil {
			errs = append(errs, fmt.Errorf("portaudio: terminate: %w", err))
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
