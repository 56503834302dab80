// Package app wires the mira subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the conditioner, the
// dispatch router, the relay chain and the pipeline from the config and the
// providers created by main; Run executes the pipeline next to the optional
// ops HTTP server; Shutdown tears everything down in reverse order.
//
// For testing, inject a metrics registry and mock providers.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/mira/internal/command"
	"github.com/MrWong99/mira/internal/conditioner"
	"github.com/MrWong99/mira/internal/config"
	"github.com/MrWong99/mira/internal/dispatch"
	"github.com/MrWong99/mira/internal/health"
	"github.com/MrWong99/mira/internal/normalize"
	"github.com/MrWong99/mira/internal/observe"
	"github.com/MrWong99/mira/internal/pipeline"
	"github.com/MrWong99/mira/internal/resilience"
	"github.com/MrWong99/mira/pkg/audio"
	"github.com/MrWong99/mira/pkg/provider/executor"
	"github.com/MrWong99/mira/pkg/provider/recognizer"
	"github.com/MrWong99/mira/pkg/provider/relay"
)

// shutdownTimeout bounds the ops server drain.
const shutdownTimeout = 5 * time.Second

// NamedRelay is one entry of the relay chain.
type NamedRelay struct {
	Name  string
	Relay relay.Relay
}

// Providers holds the externally constructed collaborators. Source,
// Recognizer and Executor are required; Relays may be empty. New takes
// ownership: every provider implementing io.Closer is closed by Shutdown.
type Providers struct {
	Source     audio.Source
	Recognizer recognizer.Recognizer
	Executor   executor.Executor
	Relays     []NamedRelay
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	configPath string
	logLevel   *slog.LevelVar
	onResponse dispatch.ResponseHandler
	registry   *prometheus.Registry
	telemetry  *observe.Provider
	metrics    *observe.Metrics

	relay    relay.Relay
	fallback *resilience.RelayFallback
	router   *liveRouter
	pipeline *pipeline.Pipeline
	ready    health.Flag
	health   *health.Handler
	watcher  *config.Watcher

	// closers run in reverse order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithConfigPath enables hot reload of the file at path when
// server.watch_config is set.
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// WithLogLevel lets hot reload adjust the level of the installed logger.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// WithResponseHandler receives every relay answer.
func WithResponseHandler(h dispatch.ResponseHandler) Option {
	return func(a *App) { a.onResponse = h }
}

// WithRegistry exports metrics to reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(a *App) { a.registry = reg }
}

// New creates an App by wiring all subsystems together. On error every
// provider is closed.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (_ *App, err error) {
	if providers == nil {
		return nil, errors.New("app: providers must not be nil")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	a.adoptProviders()
	defer func() {
		if err != nil {
			a.closeAll()
		}
	}()

	if providers.Source == nil || providers.Recognizer == nil || providers.Executor == nil {
		return nil, errors.New("app: source, recognizer and executor are required")
	}

	// ── 1. Telemetry ─────────────────────────────────────────────────────
	if err := a.initTelemetry(ctx); err != nil {
		return nil, fmt.Errorf("app: init telemetry: %w", err)
	}

	// ── 2. Relay chain ───────────────────────────────────────────────────
	a.initRelays()

	// ── 3. Dispatch router ───────────────────────────────────────────────
	r, err := a.buildRouter(cfg)
	if err != nil {
		return nil, fmt.Errorf("app: build router: %w", err)
	}
	a.router = newLiveRouter(r)

	// ── 4. Pipeline ──────────────────────────────────────────────────────
	cond, err := conditioner.New(cfg.ConditionerParams())
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.pipeline, err = pipeline.New(providers.Source, cond, providers.Recognizer, a.router,
		pipeline.WithMetrics(a.metrics),
		pipeline.WithReadyFlag(&a.ready),
	)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	// ── 5. Health ────────────────────────────────────────────────────────
	checks := []health.Checker{a.ready.Checker("pipeline")}
	if a.fallback != nil {
		checks = append(checks, health.Checker{Name: "relay", Check: a.checkRelays})
	}
	a.health = health.New(checks...)

	// ── 6. Config watcher ────────────────────────────────────────────────
	if cfg.Server.WatchConfig && a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.applyConfig)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		a.watcher = w
		a.closers = append(a.closers, func() error { w.Stop(); return nil })
	}

	return a, nil
}

// adoptProviders registers a closer for every provider that has one.
func (a *App) adoptProviders() {
	add := func(v any) {
		if c, ok := v.(io.Closer); ok && c != nil {
			a.closers = append(a.closers, c.Close)
		}
	}
	add(a.providers.Source)
	add(a.providers.Recognizer)
	add(a.providers.Executor)
	for _, r := range a.providers.Relays {
		add(r.Relay)
	}
}

func (a *App) initTelemetry(ctx context.Context) error {
	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	tp, err := observe.InitProvider(ctx, observe.ProviderConfig{
		Registerer: a.registry,
		SetGlobal:  true,
	})
	if err != nil {
		return err
	}
	a.telemetry = tp
	a.metrics = tp.Metrics
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return tp.Shutdown(ctx)
	})
	return nil
}

// initRelays chains the configured relays behind circuit breakers.
func (a *App) initRelays() {
	relays := a.providers.Relays
	if len(relays) == 0 {
		slog.Warn("app: no relay configured; unmatched transcripts are dropped")
		return
	}
	cb := a.cfg.BreakerConfig("")
	cb.OnStateChange = func(name string, _, to resilience.State) {
		a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
	}
	a.fallback = resilience.NewRelayFallback(relays[0].Relay, relays[0].Name, resilience.FallbackConfig{CircuitBreaker: cb})
	for _, r := range relays[1:] {
		a.fallback.AddFallback(r.Name, r.Relay)
	}
	a.relay = a.fallback
}

// buildRouter creates a dispatch router for the command table, actions and
// normalizer settings in cfg.
func (a *App) buildRouter(cfg *config.Config) (*dispatch.Router, error) {
	nopts := []normalize.Option{normalize.WithMaxInputBytes(cfg.Normalizer.MaxInputBytes)}
	if cfg.Normalizer.StopWords != nil {
		nopts = append(nopts, normalize.WithStopWords(cfg.Normalizer.StopWords))
	}
	n := normalize.New(nopts...)

	table := cfg.CommandTable()
	if err := table.Validate(); err != nil {
		return nil, err
	}
	table, dropped := table.Normalize(n.Normalize)
	for _, e := range dropped {
		slog.Warn("app: trigger phrase is empty after normalization; ignored", "phrase", e.Phrase, "command", e.ID)
	}
	if len(table) == 0 {
		return nil, errors.New("no usable trigger phrases")
	}

	dopts := []dispatch.Option{
		dispatch.WithActions(cfg.ActionTable()),
		dispatch.WithMetrics(a.metrics),
	}
	if a.onResponse != nil {
		dopts = append(dopts, dispatch.WithResponseHandler(a.onResponse))
	}
	return dispatch.NewRouter(command.NewMatcher(table), n, a.providers.Executor, a.relay, dopts...)
}

// checkRelays fails when every relay breaker is open.
func (a *App) checkRelays(context.Context) error {
	states := a.fallback.States()
	for _, s := range states {
		if s != resilience.StateOpen {
			return nil
		}
	}
	return fmt.Errorf("all %d relay circuits open", len(states))
}

// applyConfig is the watcher callback.
func (a *App) applyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(d.NewLogLevel))
		slog.Info("app: log level changed", "level", d.NewLogLevel)
	}
	if d.RouterChanged {
		r, err := a.buildRouter(new)
		if err != nil {
			slog.Warn("app: reload rejected, keeping previous commands", "err", err)
		} else {
			a.router.swap(r)
			slog.Info("app: commands reloaded",
				"commands_changed", d.CommandsChanged,
				"actions_changed", d.ActionsChanged,
			)
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("app: config changes need a restart", "sections", d.RestartRequired)
	}
}

// Handler returns the ops HTTP handler: /metrics, /healthz and /readyz.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	a.health.Register(mux)
	return observe.Middleware(a.metrics)(mux)
}

// Run blocks until ctx is cancelled, the audio source is exhausted, or the
// pipeline or ops server fails. A clean stop returns nil.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return a.pipeline.Run(gctx)
	})

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           a.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("app: ops server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: ops server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}

	return g.Wait()
}

// Shutdown closes all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		slog.Info("app: shutting down", "closers", len(a.closers))
		err = a.runClosers(ctx)
	})
	return err
}

func (a *App) closeAll() {
	a.stopOnce.Do(func() { _ = a.runClosers(context.Background()) })
}

func (a *App) runClosers(ctx context.Context) error {
	var errs []error
	for i, closer := range slices.Backward(a.closers) {
		if err := ctx.Err(); err != nil {
			slog.Warn("app: shutdown deadline exceeded", "remaining", i+1)
			errs = append(errs, err)
			break
		}
		if err := closer(); err != nil {
			slog.Warn("app: close failed", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SlogLevel maps a config log level to its slog equivalent.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// liveRouter lets config reloads replace the dispatch router while the
// pipeline is running.
type liveRouter struct {
	cur atomic.Pointer[dispatch.Router]
}

func newLiveRouter(r *dispatch.Router) *liveRouter {
	lr := &liveRouter{}
	lr.cur.Store(r)
	return lr
}

func (l *liveRouter) swap(r *dispatch.Router) { l.cur.Store(r) }

// Route implements [pipeline.Router].
func (l *liveRouter) Route(ctx context.Context, transcript string) dispatch.Outcome {
	return l.cur.Load().Route(ctx, transcript)
}
