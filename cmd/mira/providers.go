package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/mira/internal/app"
	"github.com/MrWong99/mira/internal/config"
	"github.com/MrWong99/mira/pkg/audio"
	"github.com/MrWong99/mira/pkg/audio/portaudio"
	"github.com/MrWong99/mira/pkg/provider/executor"
	"github.com/MrWong99/mira/pkg/provider/executor/mqtt"
	"github.com/MrWong99/mira/pkg/provider/executor/script"
	"github.com/MrWong99/mira/pkg/provider/recognizer"
	"github.com/MrWong99/mira/pkg/provider/recognizer/whisper"
	"github.com/MrWong99/mira/pkg/provider/relay"
	"github.com/MrWong99/mira/pkg/provider/relay/anyllm"
	"github.com/MrWong99/mira/pkg/provider/relay/ollama"
	"github.com/MrWong99/mira/pkg/provider/relay/openai"
)

// anyllmBackends are served through any-llm-go. "openai" and "ollama" have
// dedicated adapters.
var anyllmBackends = []string{
	"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Recognizers ───────────────────────────────────────────────────────────

	reg.RegisterRecognizer("whisper-native", func(entry config.ProviderEntry, rate int) (recognizer.Recognizer, error) {
		opts, err := whisperOptions(entry, rate)
		if err != nil {
			return nil, err
		}
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.OptString("model_path", "")
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterRecognizer("whisper", func(entry config.ProviderEntry, rate int) (recognizer.Recognizer, error) {
		opts, err := whisperOptions(entry, rate)
		if err != nil {
			return nil, err
		}
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		timeout, err := entry.OptDuration("timeout", 0)
		if err != nil {
			return nil, err
		}
		opts = append(opts, whisper.WithRequestTimeout(timeout))
		return whisper.NewServer(entry.BaseURL, opts...)
	})

	// ── Executors ─────────────────────────────────────────────────────────────

	reg.RegisterExecutor("script", func(entry config.ProviderEntry) (executor.Executor, error) {
		scripts, err := entry.OptStringMap("scripts")
		if err != nil {
			return nil, err
		}
		if scripts == nil {
			scripts = script.DefaultScripts(entry.OptString("dir", script.DefaultDir))
		}
		args, err := entry.OptStrings("args")
		if err != nil {
			return nil, err
		}
		env, err := entry.OptStrings("env")
		if err != nil {
			return nil, err
		}
		return script.New(scripts, script.WithArgs(args...), script.WithEnv(env...)), nil
	})

	reg.RegisterExecutor("mqtt", func(entry config.ProviderEntry) (executor.Executor, error) {
		timeout, err := entry.OptDuration("publish_timeout", mqtt.DefaultPublishTimeout)
		if err != nil {
			return nil, err
		}
		actions, err := entry.OptStrings("actions")
		if err != nil {
			return nil, err
		}
		return mqtt.New(mqtt.Config{
			BrokerURL:      entry.BaseURL,
			ClientID:       entry.OptString("client_id", ""),
			Username:       entry.OptString("username", ""),
			Password:       entry.APIKey,
			TopicPrefix:    entry.OptString("topic_prefix", mqtt.DefaultTopicPrefix),
			PublishTimeout: timeout,
			Actions:        actions,
		})
	})

	// "log" only records actions; useful for trying commands without a robot.
	reg.RegisterExecutor("log", func(config.ProviderEntry) (executor.Executor, error) {
		return executor.Func(func(ctx context.Context, action string) error {
			slog.InfoContext(ctx, "executor: action", "action", action)
			return nil
		}), nil
	})

	// ── Relays ────────────────────────────────────────────────────────────────

	reg.RegisterRelay("ollama", func(entry config.ProviderEntry) (relay.Relay, error) {
		timeout, err := entry.OptDuration("timeout", 0)
		if err != nil {
			return nil, err
		}
		opts := []ollama.Option{ollama.WithMaxPromptBytes(entry.OptInt("max_prompt_bytes", ollama.DefaultMaxPromptBytes))}
		if timeout > 0 {
			opts = append(opts, ollama.WithTimeout(timeout))
		}
		return ollama.New(entry.BaseURL, entry.Model, opts...)
	})

	reg.RegisterRelay("openai", func(entry config.ProviderEntry) (relay.Relay, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if sp := entry.OptString("system_prompt", ""); sp != "" {
			opts = append(opts, openai.WithSystemPrompt(sp))
		}
		if n := entry.OptInt("max_tokens", 0); n > 0 {
			opts = append(opts, openai.WithMaxTokens(n))
		}
		timeout, err := entry.OptDuration("timeout", 0)
		if err != nil {
			return nil, err
		}
		if timeout > 0 {
			opts = append(opts, openai.WithTimeout(timeout))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range anyllmBackends {
		reg.RegisterRelay(providerName, func(entry config.ProviderEntry) (relay.Relay, error) {
			var backendOpts []anyllmlib.Option
			if entry.APIKey != "" {
				backendOpts = append(backendOpts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				backendOpts = append(backendOpts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			var opts []anyllm.Option
			if sp := entry.OptString("system_prompt", ""); sp != "" {
				opts = append(opts, anyllm.WithSystemPrompt(sp))
			}
			if n := entry.OptInt("max_tokens", 0); n > 0 {
				opts = append(opts, anyllm.WithMaxTokens(n))
			}
			return anyllm.New(providerName, entry.Model, backendOpts, opts...)
		})
	}
}

func whisperOptions(entry config.ProviderEntry, rate int) ([]whisper.Option, error) {
	silence, err := entry.OptDuration("silence", 0)
	if err != nil {
		return nil, err
	}
	maxUtt, err := entry.OptDuration("max_utterance", 0)
	if err != nil {
		return nil, err
	}
	return []whisper.Option{
		whisper.WithLanguage(entry.OptString("language", "")),
		whisper.WithSampleRate(rate),
		whisper.WithSilenceDuration(silence),
		whisper.WithMaxUtterance(maxUtt),
	}, nil
}

// buildProviders opens the audio source and instantiates every provider
// named in cfg. On error, whatever was already created is closed.
func buildProviders(cfg *config.Config, reg *config.Registry) (_ *app.Providers, err error) {
	ps := &app.Providers{}
	var opened []func() error
	defer func() {
		if err != nil {
			for i := len(opened) - 1; i >= 0; i-- {
				_ = opened[i]()
			}
		}
	}()
	track := func(v any) {
		if c, ok := v.(interface{ Close() error }); ok {
			opened = append(opened, c.Close)
		}
	}

	ps.Source, err = openSource(cfg.Audio)
	if err != nil {
		return nil, err
	}
	track(ps.Source)
	slog.Info("audio source opened", "source", cfg.Audio.Source, "format", ps.Source.Format().String())

	ps.Recognizer, err = reg.CreateRecognizer(cfg.Recognizer, cfg.Audio.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("create recognizer %q: %w", cfg.Recognizer.Name, err)
	}
	track(ps.Recognizer)
	slog.Info("provider created", "kind", "recognizer", "name", cfg.Recognizer.Name)

	ps.Executor, err = reg.CreateExecutor(cfg.Executor)
	if err != nil {
		return nil, fmt.Errorf("create executor %q: %w", cfg.Executor.Name, err)
	}
	track(ps.Executor)
	slog.Info("provider created", "kind", "executor", "name", cfg.Executor.Name)

	for i, entry := range cfg.Relays {
		r, err := reg.CreateRelay(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			return nil, fmt.Errorf("relays[%d]: %w", i, err)
		} else if err != nil {
			return nil, fmt.Errorf("create relay %q: %w", entry.Name, err)
		}
		track(r)
		name := fmt.Sprintf("%s#%d", entry.Name, i)
		ps.Relays = append(ps.Relays, app.NamedRelay{Name: name, Relay: r})
		slog.Info("provider created", "kind", "relay", "name", name, "model", entry.Model)
	}
	return ps, nil
}

func openSource(cfg config.AudioConfig) (audio.Source, error) {
	switch cfg.Source {
	case config.SourceWAV:
		return audio.OpenWAV(cfg.WAVPath, cfg.SampleRate, cfg.FrameSize, audio.WithRealtime(cfg.Realtime))
	default:
		return portaudio.Open(portaudio.Config{
			SampleRate: cfg.SampleRate,
			FrameSize:  cfg.FrameSize,
			DeviceHint: cfg.Device,
		})
	}
}
