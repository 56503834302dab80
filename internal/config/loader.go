package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/mira/internal/command"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"recognizer": {"whisper-native", "whisper"},
	"executor":   {"script", "mqtt", "log"},
	"relay":      {"ollama", "openai", "anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references
// against the environment, applies defaults, and validates the result.
// An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadBytes(data []byte) (*Config, error) {
	return LoadFromReader(bytes.NewReader(data))
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
// Validate expects [ApplyDefaults] to have run.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}

	// Audio
	if !cfg.Audio.Source.IsValid() {
		errs = append(errs, fmt.Errorf("audio.source %q is invalid; valid values: portaudio, wav", cfg.Audio.Source))
	}
	if cfg.Audio.Source == SourceWAV && cfg.Audio.WAVPath == "" {
		errs = append(errs, errors.New("audio.wav_path is required when source is wav"))
	}
	if cfg.Audio.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must be positive", cfg.Audio.FrameSize))
	}
	if err := cfg.ConditionerParams().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("conditioner: %w", err))
	}

	// Normalizer
	if cfg.Normalizer.MaxInputBytes <= 0 {
		errs = append(errs, fmt.Errorf("normalizer.max_input_bytes %d must be positive", cfg.Normalizer.MaxInputBytes))
	}

	// Commands
	for i, e := range cfg.Commands {
		prefix := fmt.Sprintf("commands[%d]", i)
		if strings.TrimSpace(e.Phrase) == "" {
			errs = append(errs, fmt.Errorf("%s.phrase is required", prefix))
		}
		if err := validCommand(e.Command); err != nil {
			errs = append(errs, fmt.Errorf("%s.command: %w", prefix, err))
		}
	}

	// Actions
	for _, name := range slices.Sorted(maps.Keys(cfg.Actions)) {
		if err := validCommand(name); err != nil {
			errs = append(errs, fmt.Errorf("actions: %w", err))
		}
		if strings.TrimSpace(cfg.Actions[name]) == "" {
			errs = append(errs, fmt.Errorf("actions.%s must not be empty", name))
		}
	}

	// Providers
	if cfg.Recognizer.Name == "" {
		errs = append(errs, errors.New("recognizer.name is required"))
	}
	if cfg.Executor.Name == "" {
		errs = append(errs, errors.New("executor.name is required"))
	}
	validateProviderName("recognizer", cfg.Recognizer.Name)
	validateProviderName("executor", cfg.Executor.Name)
	for i, r := range cfg.Relays {
		if r.Name == "" {
			errs = append(errs, fmt.Errorf("relays[%d].name is required", i))
			continue
		}
		validateProviderName("relay", r.Name)
	}
	if len(cfg.Relays) == 0 {
		slog.Warn("no relays configured; unmatched transcripts will be dropped")
	}

	// Resilience
	if cfg.Resilience.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("resilience.max_failures %d must not be negative", cfg.Resilience.MaxFailures))
	}
	if cfg.Resilience.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("resilience.reset_timeout %s must not be negative", cfg.Resilience.ResetTimeout))
	}
	if cfg.Resilience.HalfOpenMax < 0 {
		errs = append(errs, fmt.Errorf("resilience.half_open_max %d must not be negative", cfg.Resilience.HalfOpenMax))
	}

	return errors.Join(errs...)
}

// validCommand reports whether name resolves to a known command.
func validCommand(name string) error {
	id, err := command.ParseID(name)
	if err != nil {
		return err
	}
	if !id.IsKnown() {
		return fmt.Errorf("%s cannot be configured", id)
	}
	return nil
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
