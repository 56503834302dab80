package config

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is the polling period of a [Watcher].
const DefaultWatchInterval = 5 * time.Second

// ReloadFunc receives the config that was live and the one replacing it. It
// runs on the watcher goroutine; the next poll waits for it to return.
type ReloadFunc func(prev, next *Config)

// fileStamp identifies one revision of the config file.
type fileStamp struct {
	modTime time.Time
	sum     [sha256.Size]byte
}

// Watcher keeps the live config in step with the file on disk so that edits
// to the command table, actions, normalizer, or log level take effect without
// a restart. Edits that fail validation are logged once and ignored until the
// file changes again.
type Watcher struct {
	path     string
	interval time.Duration
	onReload ReloadFunc

	mu    sync.Mutex
	live  *Config
	stamp fileStamp

	quit     chan struct{}
	exited   chan struct{}
	quitOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval overrides [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher reads and validates path, then polls it until [Watcher.Stop].
// onReload may be nil.
func NewWatcher(path string, onReload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	cfg, stamp, err := readConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onReload: onReload,
		live:     cfg,
		stamp:    stamp,
		quit:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	go w.loop()
	return w, nil
}

// Current returns the live config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.live
}

// Stop ends polling and returns once any running [ReloadFunc] has finished.
// Later calls return immediately.
func (w *Watcher) Stop() {
	w.quitOnce.Do(func() { close(w.quit) })
	<-w.exited
}

func (w *Watcher) loop() {
	defer close(w.exited)
	tick := time.NewTicker(w.interval)
	defer tick.Stop()
	for {
		select {
		case <-w.quit:
			return
		case <-tick.C:
			if prev, next := w.poll(); next != nil && w.onReload != nil {
				w.onReload(prev, next)
			}
		}
	}
}

// poll returns the replaced and the new config when the file holds a valid
// revision with different content, and nils otherwise.
func (w *Watcher) poll() (prev, next *Config) {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config: watched file unreadable", "path", w.path, "err", err)
		return nil, nil
	}

	w.mu.Lock()
	seen := w.stamp.modTime
	w.mu.Unlock()
	if info.ModTime().Equal(seen) {
		return nil, nil
	}

	cfg, stamp, err := readConfigFile(w.path)
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case err != nil:
		// Remember the mtime so the same broken edit is reported once.
		w.stamp.modTime = info.ModTime()
		slog.Warn("config: edit rejected, commands and actions unchanged", "path", w.path, "err", err)
		return nil, nil
	case stamp.sum == w.stamp.sum:
		w.stamp = stamp
		return nil, nil
	}
	prev, w.live, w.stamp = w.live, cfg, stamp
	slog.Info("config: new revision loaded", "path", w.path)
	return prev, cfg
}

func readConfigFile(path string) (*Config, fileStamp, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	cfg, err := loadBytes(data)
	if err != nil {
		return nil, fileStamp{}, err
	}
	return cfg, fileStamp{modTime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
