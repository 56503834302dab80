package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/mira/pkg/audio"
)

// whisperRate is the sample rate whisper.cpp models are trained on.
const whisperRate = 16000

// NewNative loads the model at modelPath and returns a [Recognizer] that runs
// inference in-process. The model is released by Close.
func NewNative(modelPath string, opts ...Option) (*Recognizer, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("whisper: modelPath %w", errEmptyArg)
	}
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	backend := &nativeBackend{model: model, language: o.language, sampleRate: o.sampleRate}
	return newRecognizer(backend, o), nil
}

type nativeBackend struct {
	model      whisperlib.Model
	language   string
	sampleRate int
}

// transcribe runs whisper.cpp on a fresh context and joins the segments.
func (b *nativeBackend) transcribe(ctx context.Context, samples []int16) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	samples = audio.ResampleMono(samples, b.sampleRate, whisperRate)

	// Contexts are not thread-safe; the model is.
	wctx, err := b.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(b.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", b.language, "error", err)
	}
	if err := wctx.Process(audio.ToFloat32(samples), nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

func (b *nativeBackend) close() error {
	if b.model == nil {
		return nil
	}
	return b.model.Close()
}
