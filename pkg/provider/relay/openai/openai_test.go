package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/mira/pkg/provider/relay"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	MaxCompletionTokens int `json:"max_completion_tokens"`
}

func newChatServer(t *testing.T, status int, reply string, got *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got != nil {
			b, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(b, got); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

const completionReply = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o-mini",
  "choices": [{"index": 0, "finish_reason": "stop",
    "message": {"role": "assistant", "content": "Il est midi."}}]
}`

func TestNew_MissingAPIKey(t *testing.T) {
	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Fatal("expected error for empty apiKey")
	}
}

func TestNew_MissingModel(t *testing.T) {
	if _, err := New("sk-test", ""); err == nil {
		t.Fatal("expected error for empty model")
	}
}

func TestBuildParams_SystemPrompt(t *testing.T) {
	r, err := New("sk-test", "gpt-4o-mini", WithSystemPrompt(""))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := len(r.buildParams("bonjour").Messages); got != 1 {
		t.Fatalf("messages without system prompt = %d, want 1", got)
	}

	r, _ = New("sk-test", "gpt-4o-mini")
	if got := len(r.buildParams("bonjour").Messages); got != 2 {
		t.Fatalf("messages with default system prompt = %d, want 2", got)
	}
}

func TestAsk(t *testing.T) {
	var req chatRequest
	srv := newChatServer(t, http.StatusOK, completionReply, &req)

	r, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL), WithMaxTokens(64), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := r.Ask(context.Background(), "quelle heure est il")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if got != "Il est midi." {
		t.Errorf("Ask() = %q, want %q", got, "Il est midi.")
	}
	if req.Model != "gpt-4o-mini" {
		t.Errorf("model = %q, want gpt-4o-mini", req.Model)
	}
	if len(req.Messages) != 2 || req.Messages[1].Role != "user" || req.Messages[1].Content != "quelle heure est il" {
		t.Errorf("messages = %+v, want system then user prompt", req.Messages)
	}
	if req.MaxCompletionTokens != 64 {
		t.Errorf("max_completion_tokens = %d, want 64", req.MaxCompletionTokens)
	}
}

func TestAsk_EmptyChoices(t *testing.T) {
	srv := newChatServer(t, http.StatusOK,
		`{"id":"x","object":"chat.completion","created":0,"model":"m","choices":[]}`, nil)
	r, _ := New("sk-test", "m", WithBaseURL(srv.URL), WithMaxRetries(0))
	if _, err := r.Ask(context.Background(), "bonjour"); !errors.Is(err, relay.ErrEmptyResponse) {
		t.Fatalf("Ask error = %v, want ErrEmptyResponse", err)
	}
}

func TestAsk_ServerError(t *testing.T) {
	srv := newChatServer(t, http.StatusInternalServerError, `{"error":{"message":"boom"}}`, nil)
	r, _ := New("sk-test", "m", WithBaseURL(srv.URL), WithMaxRetries(0))
	if _, err := r.Ask(context.Background(), "bonjour"); err == nil {
		t.Fatal("Ask: expected error on 500")
	}
}

func TestAsk_EmptyPrompt(t *testing.T) {
	r, _ := New("sk-test", "m")
	if _, err := r.Ask(context.Background(), " "); !errors.Is(err, relay.ErrEmptyPrompt) {
		t.Fatalf("Ask error = %v, want ErrEmptyPrompt", err)
	}
}
