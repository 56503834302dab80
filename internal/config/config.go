// Package config provides the configuration schema, loader, and provider
// registry for mira.
package config

import (
	"maps"
	"time"

	"github.com/MrWong99/mira/internal/command"
	"github.com/MrWong99/mira/internal/conditioner"
	"github.com/MrWong99/mira/internal/dispatch"
	"github.com/MrWong99/mira/internal/normalize"
	"github.com/MrWong99/mira/internal/resilience"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the log handler.
type LogFormat string

const (
	// LogFormatText is a colourised console format.
	LogFormatText LogFormat = "text"

	// LogFormatJSON emits one JSON object per line.
	LogFormatJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogFormatText || f == LogFormatJSON
}

// AudioSource selects where frames come from.
type AudioSource string

const (
	// SourcePortAudio captures from a live input device.
	SourcePortAudio AudioSource = "portaudio"

	// SourceWAV replays a WAV file.
	SourceWAV AudioSource = "wav"
)

// IsValid reports whether s is a recognised audio source.
func (s AudioSource) IsValid() bool {
	return s == SourcePortAudio || s == SourceWAV
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultFrameSize = 4000
	DefaultLogLevel  = LogInfo
	DefaultLogFormat = LogFormatText
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Audio       AudioConfig       `yaml:"audio"`
	Conditioner ConditionerConfig `yaml:"conditioner"`
	Normalizer  NormalizerConfig  `yaml:"normalizer"`

	// Commands overrides the built-in trigger phrase table when non-empty.
	Commands []CommandEntry `yaml:"commands"`

	// Actions maps command names (e.g. "CMD_AVANCE" or "avance") to executor
	// actions. Entries are merged over the built-in mapping.
	Actions map[string]string `yaml:"actions"`

	Recognizer ProviderEntry `yaml:"recognizer"`
	Executor   ProviderEntry `yaml:"executor"`

	// Relays are tried in order for transcripts that match no command.
	Relays []ProviderEntry `yaml:"relays"`

	Resilience ResilienceConfig `yaml:"resilience"`
}

// ServerConfig holds process-level settings.
type ServerConfig struct {
	// ListenAddr enables the ops HTTP server (/metrics, /healthz, /readyz)
	// when non-empty (e.g., ":9090").
	ListenAddr string `yaml:"listen_addr"`

	LogLevel  LogLevel  `yaml:"log_level"`
	LogFormat LogFormat `yaml:"log_format"`

	// WatchConfig reloads the command table, actions and log level when the
	// config file changes.
	WatchConfig bool `yaml:"watch_config"`
}

// AudioConfig selects and shapes the frame source.
type AudioConfig struct {
	Source AudioSource `yaml:"source"`

	SampleRate int `yaml:"sample_rate"`

	// FrameSize is the number of samples per frame.
	FrameSize int `yaml:"frame_size"`

	// Device is a substring of the preferred input device name. The default
	// input device is used when nothing matches.
	Device string `yaml:"device"`

	// WAVPath is the file replayed when Source is "wav".
	WAVPath string `yaml:"wav_path"`

	// Realtime paces WAV replay at the file's playback speed.
	Realtime bool `yaml:"realtime"`
}

// ConditionerConfig tunes the high-pass filter and voice-activity gate.
type ConditionerConfig struct {
	CutoffHz float64 `yaml:"cutoff_hz"`

	// RMSThreshold is in int16 sample units. Zero selects the default.
	RMSThreshold float64 `yaml:"rms_threshold"`
}

// NormalizerConfig tunes transcript normalization.
type NormalizerConfig struct {
	// StopWords replaces the built-in list when non-nil. An explicit empty
	// list disables stop-word removal.
	StopWords []string `yaml:"stop_words"`

	MaxInputBytes int `yaml:"max_input_bytes"`
}

// CommandEntry is one trigger phrase.
type CommandEntry struct {
	Phrase  string `yaml:"phrase"`
	Command string `yaml:"command"`
}

// ResilienceConfig configures the circuit breaker placed in front of each
// relay.
type ResilienceConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "ollama", "script").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "ministral:3b").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or lists.
	Options map[string]any `yaml:"options"`
}

// ApplyDefaults fills zero values with the built-in defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = DefaultLogLevel
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = DefaultLogFormat
	}
	if cfg.Audio.Source == "" {
		cfg.Audio.Source = SourcePortAudio
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = conditioner.DefaultSampleRate
	}
	if cfg.Audio.FrameSize == 0 {
		cfg.Audio.FrameSize = DefaultFrameSize
	}
	if cfg.Conditioner.CutoffHz == 0 {
		cfg.Conditioner.CutoffHz = conditioner.DefaultCutoffHz
	}
	if cfg.Conditioner.RMSThreshold == 0 {
		cfg.Conditioner.RMSThreshold = conditioner.DefaultThreshold
	}
	if cfg.Normalizer.MaxInputBytes == 0 {
		cfg.Normalizer.MaxInputBytes = normalize.DefaultMaxInputBytes
	}
	if cfg.Recognizer.Name == "" {
		cfg.Recognizer.Name = "whisper-native"
	}
	if cfg.Executor.Name == "" {
		cfg.Executor.Name = "script"
	}
	if cfg.Relays == nil {
		cfg.Relays = []ProviderEntry{{Name: "ollama"}}
	}
	if cfg.Resilience.MaxFailures == 0 {
		cfg.Resilience.MaxFailures = resilience.DefaultMaxFailures
	}
	if cfg.Resilience.ResetTimeout == 0 {
		cfg.Resilience.ResetTimeout = resilience.DefaultResetTimeout
	}
	if cfg.Resilience.HalfOpenMax == 0 {
		cfg.Resilience.HalfOpenMax = resilience.DefaultHalfOpenMax
	}
}

// ConditionerParams returns the conditioner parameters.
func (c *Config) ConditionerParams() conditioner.Config {
	return conditioner.Config{
		SampleRate: c.Audio.SampleRate,
		CutoffHz:   c.Conditioner.CutoffHz,
		Threshold:  c.Conditioner.RMSThreshold,
	}
}

// CommandTable returns the configured trigger phrases, or the built-in
// table when none are configured. Call it only on a validated config.
func (c *Config) CommandTable() command.Table {
	if len(c.Commands) == 0 {
		return command.DefaultTable()
	}
	t := make(command.Table, 0, len(c.Commands))
	for _, e := range c.Commands {
		id, _ := command.ParseID(e.Command)
		t = append(t, command.Entry{Phrase: e.Phrase, ID: id})
	}
	return t
}

// ActionTable returns the built-in command-to-action mapping with the
// configured actions merged over it. Call it only on a validated config.
func (c *Config) ActionTable() map[command.ID]dispatch.Action {
	out := dispatch.DefaultActions()
	for name, action := range c.Actions {
		id, _ := command.ParseID(name)
		out[id] = dispatch.Action(action)
	}
	return out
}

// BreakerConfig returns the circuit breaker settings for the relay named
// name.
func (c *Config) BreakerConfig(name string) resilience.CircuitBreakerConfig {
	return resilience.CircuitBreakerConfig{
		Name:         name,
		MaxFailures:  c.Resilience.MaxFailures,
		ResetTimeout: c.Resilience.ResetTimeout,
		HalfOpenMax:  c.Resilience.HalfOpenMax,
	}
}

// Clone returns a deep copy of the maps and slices in c that callers may
// mutate.
func (c *Config) Clone() *Config {
	out := *c
	out.Commands = append([]CommandEntry(nil), c.Commands...)
	out.Actions = maps.Clone(c.Actions)
	out.Relays = append([]ProviderEntry(nil), c.Relays...)
	return &out
}
