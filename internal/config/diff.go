package config

import (
	"maps"
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RouterChanged is true when the command table, the actions, or the
	// normalizer settings changed. These are applied by rebuilding the
	// dispatch router.
	RouterChanged   bool
	CommandsChanged bool
	ActionsChanged  bool

	// RestartRequired lists the sections that changed but only take effect
	// after a restart.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.RouterChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.CommandsChanged = !slices.Equal(old.Commands, new.Commands)
	d.ActionsChanged = !maps.Equal(old.Actions, new.Actions)
	normalizerChanged := old.Normalizer.MaxInputBytes != new.Normalizer.MaxInputBytes ||
		!slices.Equal(old.Normalizer.StopWords, new.Normalizer.StopWords) ||
		(old.Normalizer.StopWords == nil) != (new.Normalizer.StopWords == nil)
	d.RouterChanged = d.CommandsChanged || d.ActionsChanged || normalizerChanged

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	if oldServer != newServer {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.Conditioner != new.Conditioner {
		d.RestartRequired = append(d.RestartRequired, "conditioner")
	}
	if !reflect.DeepEqual(old.Recognizer, new.Recognizer) {
		d.RestartRequired = append(d.RestartRequired, "recognizer")
	}
	if !reflect.DeepEqual(old.Executor, new.Executor) {
		d.RestartRequired = append(d.RestartRequired, "executor")
	}
	if !reflect.DeepEqual(old.Relays, new.Relays) {
		d.RestartRequired = append(d.RestartRequired, "relays")
	}
	if old.Resilience != new.Resilience {
		d.RestartRequired = append(d.RestartRequired, "resilience")
	}

	return d
}
