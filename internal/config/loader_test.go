package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/mira/internal/config"
)

func TestValidate_Rejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{
			name:    "invalid log level",
			yaml:    "server:\n  log_level: verbose\n",
			wantMsg: "server.log_level",
		},
		{
			name:    "invalid log format",
			yaml:    "server:\n  log_format: xml\n",
			wantMsg: "server.log_format",
		},
		{
			name:    "invalid audio source",
			yaml:    "audio:\n  source: alsa\n",
			wantMsg: "audio.source",
		},
		{
			name:    "wav without path",
			yaml:    "audio:\n  source: wav\n",
			wantMsg: "audio.wav_path",
		},
		{
			name:    "negative frame size",
			yaml:    "audio:\n  frame_size: -1\n",
			wantMsg: "audio.frame_size",
		},
		{
			name:    "cutoff above nyquist",
			yaml:    "conditioner:\n  cutoff_hz: 9000\n",
			wantMsg: "Nyquist",
		},
		{
			name:    "negative threshold",
			yaml:    "conditioner:\n  rms_threshold: -3\n",
			wantMsg: "threshold",
		},
		{
			name:    "negative max input",
			yaml:    "normalizer:\n  max_input_bytes: -5\n",
			wantMsg: "normalizer.max_input_bytes",
		},
		{
			name:    "unknown command name",
			yaml:    "commands:\n  - phrase: saute\n    command: CMD_SAUTE\n",
			wantMsg: "commands[0].command",
		},
		{
			name:    "unknown command in table",
			yaml:    "commands:\n  - phrase: quoi\n    command: CMD_UNKNOWN\n",
			wantMsg: "cannot be configured",
		},
		{
			name:    "empty phrase",
			yaml:    "commands:\n  - phrase: \"  \"\n    command: stop\n",
			wantMsg: "commands[0].phrase",
		},
		{
			name:    "unknown action key",
			yaml:    "actions:\n  voler: FLY\n",
			wantMsg: "actions",
		},
		{
			name:    "empty action",
			yaml:    "actions:\n  stop: \"\"\n",
			wantMsg: "actions.stop",
		},
		{
			name:    "relay without name",
			yaml:    "relays:\n  - model: x\n",
			wantMsg: "relays[0].name",
		},
		{
			name:    "negative breaker values",
			yaml:    "resilience:\n  max_failures: -1\n",
			wantMsg: "resilience.max_failures",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error should mention %q, got: %v", tt.wantMsg, err)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
audio:
  source: tape
commands:
  - phrase: ""
    command: nope
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, want := range []string{"server.log_level", "audio.source", "commands[0].phrase", "commands[0].command"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}

func TestValidate_CommandNamesFlexible(t *testing.T) {
	t.Parallel()
	yaml := `
commands:
  - phrase: en avant
    command: cmd_avance
  - phrase: demi tour
    command: Recule
actions:
  CMD_POSITION: WHERE
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	for _, kind := range []string{"recognizer", "executor", "relay"} {
		if len(config.ValidProviderNames[kind]) == 0 {
			t.Errorf("ValidProviderNames[%q] is empty", kind)
		}
	}
}
