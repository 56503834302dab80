package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVOption configures a [WAVSource].
type WAVOption func(*WAVSource)

// WithRealtime paces ReadFrame so that frames are delivered at the rate they
// would arrive from a microphone.
func WithRealtime(enabled bool) WAVOption {
	return func(s *WAVSource) { s.realtime = enabled }
}

// WAVSource replays a WAV file as a stream of fixed-size mono frames. The
// file is decoded, downmixed, and resampled to the requested format when it
// is opened. ReadFrame returns io.EOF once every sample has been delivered.
type WAVSource struct {
	format   Format
	samples  []int16
	pos      int
	realtime bool
	next     time.Time
}

var _ Source = (*WAVSource)(nil)

// OpenWAV decodes the WAV file at path into a [WAVSource] producing frames of
// frameSize samples at sampleRate.
func OpenWAV(path string, sampleRate, frameSize int, opts ...WAVOption) (*WAVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audio: open wav: %w", err)
	}
	defer f.Close()
	return NewWAVSource(f, sampleRate, frameSize, opts...)
}

// NewWAVSource decodes WAV data from r. See [OpenWAV].
func NewWAVSource(r io.ReadSeeker, sampleRate, frameSize int, opts ...WAVOption) (*WAVSource, error) {
	if sampleRate <= 0 || frameSize <= 0 {
		return nil, fmt.Errorf("audio: wav: invalid format %dHz/%d", sampleRate, frameSize)
	}
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("audio: wav: invalid file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("audio: wav: decode: %w", err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, errors.New("audio: wav: no samples")
	}

	channels, srcRate := 1, int(dec.SampleRate)
	if buf.Format != nil {
		if buf.Format.NumChannels > 0 {
			channels = buf.Format.NumChannels
		}
		if buf.Format.SampleRate > 0 {
			srcRate = buf.Format.SampleRate
		}
	}

	pcm := intsToPCM16(buf.Data, int(dec.BitDepth))
	pcm = DownmixMono(pcm, channels)
	pcm = ResampleMono(pcm, srcRate, sampleRate)

	s := &WAVSource{
		format:  Format{SampleRate: sampleRate, Channels: 1, FrameSize: frameSize},
		samples: pcm,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// ReadFrame returns the next frame. The final frame may be shorter than the
// configured frame size.
func (s *WAVSource) ReadFrame(ctx context.Context) (Frame, error) {
	if s.pos >= len(s.samples) {
		return Frame{}, io.EOF
	}
	if s.realtime {
		if err := s.pace(ctx); err != nil {
			return Frame{}, err
		}
	}

	end := min(s.pos+s.format.FrameSize, len(s.samples))
	out := make([]int16, end-s.pos)
	copy(out, s.samples[s.pos:end])

	f := Frame{
		Samples:    out,
		SampleRate: s.format.SampleRate,
		Timestamp:  time.Duration(s.pos) * time.Second / time.Duration(s.format.SampleRate),
	}
	s.pos = end
	return f, nil
}

func (s *WAVSource) pace(ctx context.Context) error {
	now := time.Now()
	if s.next.IsZero() {
		s.next = now
	}
	wait := s.next.Sub(now)
	s.next = s.next.Add(time.Duration(s.format.FrameSize) * time.Second / time.Duration(s.format.SampleRate))
	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Format implements [Source].
func (s *WAVSource) Format() Format { return s.format }

// Close implements [Source]. The decoded samples are released.
func (s *WAVSource) Close() error {
	s.samples = nil
	s.pos = 0
	return nil
}

// intsToPCM16 rescales decoded integer samples of the given bit depth to int16.
func intsToPCM16(data []int, bitDepth int) []int16 {
	out := make([]int16, len(data))
	for i, v := range data {
		switch {
		case bitDepth == 8:
			out[i] = int16((v - 128) << 8)
		case bitDepth > 16:
			out[i] = int16(v >> (bitDepth - 16))
		default:
			out[i] = int16(v)
		}
	}
	return out
}

// EncodeWAV writes samples as a 16-bit mono PCM WAV file to w.
func EncodeWAV(w io.WriteSeeker, samples []int16, sampleRate int) error {
	const (
		bitDepth  = 16
		pcmFormat = 1
	)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	enc := wav.NewEncoder(w, sampleRate, bitDepth, 1, pcmFormat)
	if err := enc.Write(&goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: bitDepth,
	}); err != nil {
		return fmt.Errorf("audio: wav: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: wav: finalize: %w", err)
	}
	return nil
}

// WriteBuffer is an in-memory [io.WriteSeeker], used to encode WAV payloads
// without a temporary file.
type WriteBuffer struct {
	buf []byte
	pos int
}

// Write implements [io.Writer].
func (b *WriteBuffer) Write(p []byte) (int, error) {
	end := b.pos + len(p)
	if end > len(b.buf) {
		b.buf = append(b.buf, make([]byte, end-len(b.buf))...)
	}
	copy(b.buf[b.pos:end], p)
	b.pos = end
	return len(p), nil
}

// Seek implements [io.Seeker].
func (b *WriteBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(b.pos) + offset
	case io.SeekEnd:
		abs = int64(len(b.buf)) + offset
	default:
		return 0, errors.New("audio: write buffer: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("audio: write buffer: negative position")
	}
	b.pos = int(abs)
	return abs, nil
}

// Bytes returns the written contents.
func (b *WriteBuffer) Bytes() []byte { return b.buf }
