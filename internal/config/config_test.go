package config_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/mira/internal/command"
	"github.com/MrWong99/mira/internal/config"
	"github.com/MrWong99/mira/internal/conditioner"
	"github.com/MrWong99/mira/internal/resilience"
	"github.com/MrWong99/mira/pkg/provider/executor"
	execmock "github.com/MrWong99/mira/pkg/provider/executor/mock"
	"github.com/MrWong99/mira/pkg/provider/recognizer"
	recmock "github.com/MrWong99/mira/pkg/provider/recognizer/mock"
	"github.com/MrWong99/mira/pkg/provider/relay"
	relaymock "github.com/MrWong99/mira/pkg/provider/relay/mock"
)

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
  log_format: json
  watch_config: true

audio:
  source: wav
  sample_rate: 16000
  frame_size: 320
  wav_path: ./testdata/avance.wav
  realtime: true

conditioner:
  cutoff_hz: 150
  rms_threshold: 500

normalizer:
  stop_words: [le, la]
  max_input_bytes: 512

commands:
  - phrase: en avant
    command: CMD_AVANCE
  - phrase: halte
    command: stop

actions:
  avance: FORWARD
  CMD_STOP: HALT

recognizer:
  name: whisper
  base_url: http://localhost:8081
  options:
    language: fr

executor:
  name: mqtt
  base_url: tcp://localhost:1883
  options:
    topic_prefix: robot
    publish_timeout: 3s

relays:
  - name: ollama
    model: ministral:3b
  - name: openai
    api_key: sk-test
    model: gpt-4o-mini

resilience:
  max_failures: 2
  reset_timeout: 10s
  half_open_max: 1
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" || cfg.Server.LogLevel != config.LogDebug || cfg.Server.LogFormat != config.LogFormatJSON {
		t.Errorf("server = %+v", cfg.Server)
	}
	if !cfg.Server.WatchConfig {
		t.Error("watch_config not decoded")
	}
	if cfg.Audio.Source != config.SourceWAV || cfg.Audio.FrameSize != 320 || !cfg.Audio.Realtime {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if got := cfg.ConditionerParams(); got.CutoffHz != 150 || got.Threshold != 500 || got.SampleRate != 16000 {
		t.Errorf("ConditionerParams() = %+v", got)
	}
	if len(cfg.Relays) != 2 || cfg.Relays[1].Name != "openai" || cfg.Relays[1].APIKey != "sk-test" {
		t.Errorf("relays = %+v", cfg.Relays)
	}
	if cfg.Resilience.ResetTimeout != 10*time.Second {
		t.Errorf("reset_timeout = %s, want 10s", cfg.Resilience.ResetTimeout)
	}
	if got := cfg.Recognizer.OptString("language", ""); got != "fr" {
		t.Errorf("recognizer language = %q, want fr", got)
	}
}

func TestLoadFromReader_EmptyUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.LogLevel != config.LogInfo || cfg.Server.LogFormat != config.LogFormatText {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Audio.Source != config.SourcePortAudio || cfg.Audio.SampleRate != conditioner.DefaultSampleRate {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Conditioner.RMSThreshold != conditioner.DefaultThreshold {
		t.Errorf("rms_threshold = %g, want %g", cfg.Conditioner.RMSThreshold, conditioner.DefaultThreshold)
	}
	if cfg.Recognizer.Name != "whisper-native" || cfg.Executor.Name != "script" {
		t.Errorf("providers = %q / %q", cfg.Recognizer.Name, cfg.Executor.Name)
	}
	if len(cfg.Relays) != 1 || cfg.Relays[0].Name != "ollama" {
		t.Errorf("relays = %+v, want [ollama]", cfg.Relays)
	}
	if cfg.Resilience.MaxFailures != resilience.DefaultMaxFailures {
		t.Errorf("max_failures = %d", cfg.Resilience.MaxFailures)
	}
}

func TestLoadFromReader_ExplicitEmptyRelays(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("relays: []\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if len(cfg.Relays) != 0 {
		t.Errorf("relays = %+v, want none", cfg.Relays)
	}
}

func TestLoadFromReader_ExpandsEnv(t *testing.T) {
	t.Setenv("MIRA_TEST_KEY", "sk-from-env")
	cfg, err := config.LoadFromReader(strings.NewReader(`
relays:
  - name: openai
    api_key: ${MIRA_TEST_KEY}
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if got := cfg.Relays[0].APIKey; got != "sk-from-env" {
		t.Errorf("api_key = %q, want sk-from-env", got)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("conditioner:\n  cutof_hz: 200\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
	if !strings.Contains(err.Error(), "cutof_hz") {
		t.Errorf("error should name the field, got: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load("/nonexistent/mira.yaml")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestConfig_CommandTable(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	want := command.Table{{Phrase: "en avant", ID: command.Avance}, {Phrase: "halte", ID: command.Stop}}
	got := cfg.CommandTable()
	if len(got) != len(want) {
		t.Fatalf("CommandTable() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("CommandTable()[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	empty, _ := config.LoadFromReader(strings.NewReader(""))
	if got := empty.CommandTable(); len(got) != len(command.DefaultTable()) {
		t.Errorf("default CommandTable() has %d entries, want %d", len(got), len(command.DefaultTable()))
	}
}

func TestConfig_ActionTable(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	actions := cfg.ActionTable()
	for id, want := range map[command.ID]string{
		command.Avance: "FORWARD",
		command.Stop:   "HALT",
		command.Recule: "RECULER",
	} {
		if got := string(actions[id]); got != want {
			t.Errorf("ActionTable()[%s] = %q, want %q", id, got, want)
		}
	}
}

func TestConfig_BreakerConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	got := cfg.BreakerConfig("ollama")
	if got.Name != "ollama" || got.MaxFailures != 2 || got.ResetTimeout != 10*time.Second || got.HalfOpenMax != 1 {
		t.Errorf("BreakerConfig() = %+v", got)
	}
}

func TestConfig_Clone(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	c := cfg.Clone()
	c.Actions["avance"] = "CHANGED"
	c.Commands[0].Phrase = "changed"
	c.Relays[0].Name = "changed"
	if cfg.Actions["avance"] != "FORWARD" || cfg.Commands[0].Phrase != "en avant" || cfg.Relays[0].Name != "ollama" {
		t.Error("Clone shares state with the original")
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	entry := config.ProviderEntry{Name: "nope"}

	if _, err := reg.CreateRecognizer(entry, 16000); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateRecognizer error = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := reg.CreateExecutor(entry); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateExecutor error = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := reg.CreateRelay(entry); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateRelay error = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_Registered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	var gotRate int
	reg.RegisterRecognizer("mock", func(_ config.ProviderEntry, rate int) (recognizer.Recognizer, error) {
		gotRate = rate
		return &recmock.Recognizer{}, nil
	})
	reg.RegisterExecutor("mock", func(config.ProviderEntry) (executor.Executor, error) {
		return &execmock.Executor{}, nil
	})
	var gotModel string
	reg.RegisterRelay("mock", func(e config.ProviderEntry) (relay.Relay, error) {
		gotModel = e.Model
		return &relaymock.Relay{}, nil
	})

	entry := config.ProviderEntry{Name: "mock", Model: "tiny"}
	if _, err := reg.CreateRecognizer(entry, 8000); err != nil || gotRate != 8000 {
		t.Errorf("CreateRecognizer: err=%v rate=%d", err, gotRate)
	}
	if _, err := reg.CreateExecutor(entry); err != nil {
		t.Errorf("CreateExecutor: %v", err)
	}
	if _, err := reg.CreateRelay(entry); err != nil || gotModel != "tiny" {
		t.Errorf("CreateRelay: err=%v model=%q", err, gotModel)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	wantErr := errors.New("model missing")
	reg.RegisterRelay("broken", func(config.ProviderEntry) (relay.Relay, error) {
		return nil, wantErr
	})
	if _, err := reg.CreateRelay(config.ProviderEntry{Name: "broken"}); !errors.Is(err, wantErr) {
		t.Errorf("CreateRelay error = %v, want %v", err, wantErr)
	}
}

// ── Options ──────────────────────────────────────────────────────────────────

func TestProviderEntry_Options(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(`
executor:
  name: script
  options:
    dir: /opt/robot
    retries: 3
    ratio: 1.5
    verbose: true
    wait: 250ms
    bad_wait: soon
    args: [vite, "--dry-run"]
    mixed: [a, 1]
    scripts:
      AVANCER: /opt/robot/go.sh
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	e := cfg.Executor

	if got := e.OptString("dir", ""); got != "/opt/robot" {
		t.Errorf("OptString(dir) = %q", got)
	}
	if got := e.OptString("missing", "def"); got != "def" {
		t.Errorf("OptString(missing) = %q, want def", got)
	}
	if got := e.OptInt("retries", 0); got != 3 {
		t.Errorf("OptInt(retries) = %d, want 3", got)
	}
	if got := e.OptInt("ratio", 7); got != 7 {
		t.Errorf("OptInt(ratio) = %d, want default 7", got)
	}
	if !e.OptBool("verbose", false) {
		t.Error("OptBool(verbose) = false, want true")
	}
	if d, err := e.OptDuration("wait", 0); err != nil || d != 250*time.Millisecond {
		t.Errorf("OptDuration(wait) = %v, %v", d, err)
	}
	if d, err := e.OptDuration("missing", time.Second); err != nil || d != time.Second {
		t.Errorf("OptDuration(missing) = %v, %v", d, err)
	}
	if _, err := e.OptDuration("bad_wait", 0); err == nil {
		t.Error("OptDuration(bad_wait) expected error")
	}
	if args, err := e.OptStrings("args"); err != nil || len(args) != 2 || args[1] != "--dry-run" {
		t.Errorf("OptStrings(args) = %q, %v", args, err)
	}
	if _, err := e.OptStrings("mixed"); err == nil {
		t.Error("OptStrings(mixed) expected error")
	}
	if m, err := e.OptStringMap("scripts"); err != nil || m["AVANCER"] != "/opt/robot/go.sh" {
		t.Errorf("OptStringMap(scripts) = %v, %v", m, err)
	}
	if _, err := e.OptStringMap("dir"); err == nil {
		t.Error("OptStringMap(dir) expected error")
	}
}
