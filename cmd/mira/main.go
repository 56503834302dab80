// Command mira listens to a microphone (or replays a WAV file), recognizes
// French voice commands, and dispatches them to the robot's action executor.
// Anything that is not a command is forwarded to a language-model relay.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/pflag"

	"github.com/MrWong99/mira/internal/app"
	"github.com/MrWong99/mira/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	flags := pflag.NewFlagSet("mira", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "config.yaml", "path to the YAML configuration file")
	logLevel := flags.StringP("log-level", "l", "", "log level override (debug, info, warn, error)")
	wavPath := flags.String("wav", "", "replay this WAV file instead of capturing from a device")
	envFile := flags.StringP("env-file", "e", ".env", "dotenv file loaded before the config")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "mira: %v\n", err)
		return 1
	}

	// ── Environment ───────────────────────────────────────────────────────────
	if err := godotenv.Load(*envFile); err != nil {
		if flags.Changed("env-file") || !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "mira: load env file %q: %v\n", *envFile, err)
			return 1
		}
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := loadConfig(*configPath, flags.Changed("config"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "mira: %v\n", err)
		return 1
	}
	if *logLevel != "" {
		cfg.Server.LogLevel = config.LogLevel(*logLevel)
	}
	if *wavPath != "" {
		cfg.Audio.Source = config.SourceWAV
		cfg.Audio.WAVPath = *wavPath
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "mira: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := &slog.LevelVar{}
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(cfg.Server.LogFormat, level))

	slog.Info("mira starting",
		"config", *configPath,
		"audio", cfg.Audio.Source,
		"recognizer", cfg.Recognizer.Name,
		"executor", cfg.Executor.Name,
		"relays", len(cfg.Relays),
		"log_level", cfg.Server.LogLevel,
	)

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []app.Option{
		app.WithLogLevel(level),
		app.WithResponseHandler(printResponse),
	}
	if flags.Changed("config") || fileExists(*configPath) {
		opts = append(opts, app.WithConfigPath(*configPath))
	}
	application, err := app.New(ctx, cfg, providers, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("listening; press Ctrl+C to stop")
	runErr := application.Run(ctx)

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Warn("shutdown error", "err", err)
	}

	if runErr != nil {
		slog.Error("run error", "err", runErr)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// loadConfig reads path. A missing file is an error only when the path was
// given explicitly; otherwise the built-in defaults are used.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if explicit || !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return config.LoadFromReader(strings.NewReader(""))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// printResponse writes relay answers to stdout for the operator.
func printResponse(_ context.Context, _, response string) {
	fmt.Println(response)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(format config.LogFormat, level slog.Leveler) *slog.Logger {
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
	}))
}
