// Package script implements [executor.Executor] by launching one executable
// file per action.
//
// Scripts run in the background: Execute returns as soon as the process has
// started and a goroutine reaps it. [Executor.Close] waits for every launched
// process to exit.
package script

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/MrWong99/mira/pkg/provider/executor"
)

// DefaultDir is the directory the default script table points into.
const DefaultDir = "./actions"

// DefaultScripts returns the stock action table rooted at dir. DROITE_45 and
// GAUCHE_45 have no script.
func DefaultScripts(dir string) map[string]string {
	if dir == "" {
		dir = DefaultDir
	}
	return map[string]string{
		"AVANCER":   filepath.Join(dir, "avancer.sh"),
		"RECULER":   filepath.Join(dir, "reculer.sh"),
		"STOP":      filepath.Join(dir, "stop.sh"),
		"POSITION":  filepath.Join(dir, "position.sh"),
		"AUTOPILOT": filepath.Join(dir, "autopilot.sh"),
		"SCANNE":    filepath.Join(dir, "scanne.sh"),
	}
}

var _ executor.Executor = (*Executor)(nil)

// Option configures an [Executor].
type Option func(*Executor)

// WithArgs sets extra arguments passed to every script.
func WithArgs(args ...string) Option {
	return func(e *Executor) { e.args = append([]string(nil), args...) }
}

// WithEnv appends KEY=value pairs to the scripts' environment.
func WithEnv(env ...string) Option {
	return func(e *Executor) { e.env = append([]string(nil), env...) }
}

// Executor runs scripts.
type Executor struct {
	scripts map[string]string
	args    []string
	env     []string

	wg sync.WaitGroup
}

// New creates an [Executor] for the given action → path table. A nil table
// selects [DefaultScripts] in [DefaultDir].
func New(scripts map[string]string, opts ...Option) *Executor {
	if scripts == nil {
		scripts = DefaultScripts(DefaultDir)
	}
	e := &Executor{scripts: maps.Clone(scripts)}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Path returns the script configured for action.
func (e *Executor) Path(action string) (string, bool) {
	p, ok := e.scripts[action]
	return p, ok
}

// Execute implements [executor.Executor]. ctx bounds only the checks before
// launch; a started script is not killed when ctx ends.
func (e *Executor) Execute(ctx context.Context, action string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, ok := e.scripts[action]
	if !ok || path == "" {
		return fmt.Errorf("script executor: %s not implemented: %w", action, executor.ErrUnavailable)
	}
	if err := checkExecutable(path); err != nil {
		return fmt.Errorf("script executor: %s: %w", action, err)
	}

	cmd := exec.Command(path, e.args...)
	if len(e.env) > 0 {
		cmd.Env = append(os.Environ(), e.env...)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("script executor: start %s: %w", path, err)
	}
	slog.Info("script executor: action started", "action", action, "script", path, "pid", cmd.Process.Pid)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := cmd.Wait(); err != nil {
			slog.Warn("script executor: script failed", "action", action, "script", path, "err", err)
			return
		}
		slog.Debug("script executor: script finished", "action", action, "script", path)
	}()
	return nil
}

// Close waits for all launched scripts to exit.
func (e *Executor) Close() error {
	e.wg.Wait()
	return nil
}

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", path, executor.ErrUnavailable, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory: %w", path, executor.ErrUnavailable)
	}
	if info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("%s is not executable: %w", path, executor.ErrUnavailable)
	}
	return nil
}
