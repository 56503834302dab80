package audio_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/MrWong99/mira/pkg/audio"
)

func encodeTestWAV(t *testing.T, samples []int16, rate int) *bytes.Reader {
	t.Helper()
	var buf audio.WriteBuffer
	if err := audio.EncodeWAV(&buf, samples, rate); err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	return bytes.NewReader(buf.Bytes())
}

func TestWAVSource_RoundTrip(t *testing.T) {
	t.Parallel()
	in := make([]int16, 10)
	for i := range in {
		in[i] = int16(i * 100)
	}
	src, err := audio.NewWAVSource(encodeTestWAV(t, in, 16000), 16000, 4)
	if err != nil {
		t.Fatalf("NewWAVSource: %v", err)
	}
	defer src.Close()

	if got := src.Format(); got.SampleRate != 16000 || got.FrameSize != 4 || got.Channels != 1 {
		t.Fatalf("Format() = %v, want 16000Hz mono/4", got)
	}

	var got []int16
	var sizes []int
	for {
		f, err := src.ReadFrame(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if f.SampleRate != 16000 {
			t.Fatalf("frame SampleRate = %d, want 16000", f.SampleRate)
		}
		sizes = append(sizes, len(f.Samples))
		got = append(got, f.Samples...)
	}

	wantSizes := []int{4, 4, 2}
	if len(sizes) != len(wantSizes) {
		t.Fatalf("frame sizes = %v, want %v", sizes, wantSizes)
	}
	for i := range wantSizes {
		if sizes[i] != wantSizes[i] {
			t.Fatalf("frame sizes = %v, want %v", sizes, wantSizes)
		}
	}
	equalSamples(t, got, in)
}

func TestWAVSource_Invalid(t *testing.T) {
	t.Parallel()
	_, err := audio.NewWAVSource(bytes.NewReader([]byte("not a wav file at all")), 16000, 4000)
	if err == nil {
		t.Fatal("NewWAVSource: expected error for invalid data")
	}
}

func TestWAVSource_InvalidFormat(t *testing.T) {
	t.Parallel()
	_, err := audio.NewWAVSource(encodeTestWAV(t, []int16{1, 2}, 16000), 0, 4000)
	if err == nil {
		t.Fatal("NewWAVSource: expected error for zero sample rate")
	}
}

func TestWriteBuffer_Seek(t *testing.T) {
	t.Parallel()
	var b audio.WriteBuffer
	_, _ = b.Write([]byte("hello world"))
	if _, err := b.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	_, _ = b.Write([]byte("J"))
	if got := string(b.Bytes()); got != "Jello world" {
		t.Fatalf("Bytes() = %q, want %q", got, "Jello world")
	}
	if _, err := b.Seek(-1, io.SeekStart); err == nil {
		t.Fatal("Seek(-1): expected error")
	}
}
