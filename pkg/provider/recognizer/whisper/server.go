package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/MrWong99/mira/pkg/audio"
)

// NewServer returns a [Recognizer] that sends utterances to the whisper-server
// at serverURL (e.g. "http://localhost:8080").
func NewServer(serverURL string, opts ...Option) (*Recognizer, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("whisper: serverURL %w", errEmptyArg)
	}
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	backend := &serverBackend{
		serverURL:  serverURL,
		model:      o.model,
		language:   o.language,
		sampleRate: o.sampleRate,
		httpClient: &http.Client{Timeout: o.requestTimeout},
	}
	return newRecognizer(backend, o), nil
}

type serverBackend struct {
	serverURL  string
	model      string
	language   string
	sampleRate int
	httpClient *http.Client
}

// transcribe encodes samples as a WAV file and POSTs it to /inference as
// multipart/form-data.
func (b *serverBackend) transcribe(ctx context.Context, samples []int16) (string, error) {
	samples = audio.ResampleMono(samples, b.sampleRate, whisperRate)
	var wav audio.WriteBuffer
	if err := audio.EncodeWAV(&wav, samples, whisperRate); err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav.Bytes()); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}
	fields := map[string]string{
		"language":        b.language,
		"model":           b.model,
		"response_format": "json",
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return "", fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}
	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return result.Text, nil
}

func (b *serverBackend) close() error {
	b.httpClient.CloseIdleConnections()
	return nil
}
