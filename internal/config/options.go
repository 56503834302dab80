package config

import (
	"fmt"
	"time"
)

// OptString returns the string option key, or def when it is absent.
func (e ProviderEntry) OptString(key, def string) string {
	if s, ok := e.Options[key].(string); ok {
		return s
	}
	return def
}

// OptInt returns the integer option key, or def when it is absent or not a
// whole number.
func (e ProviderEntry) OptInt(key string, def int) int {
	switch v := e.Options[key].(type) {
	case int:
		return v
	case float64:
		if v == float64(int(v)) {
			return int(v)
		}
	}
	return def
}

// OptBool returns the boolean option key, or def when it is absent.
func (e ProviderEntry) OptBool(key string, def bool) bool {
	if b, ok := e.Options[key].(bool); ok {
		return b
	}
	return def
}

// OptDuration parses the option key as a Go duration ("2s", "500ms").
func (e ProviderEntry) OptDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := e.Options[key]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("config: option %q: want a duration string, got %T", key, v)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("config: option %q: %w", key, err)
	}
	return d, nil
}

// OptStrings returns the list option key. Non-string elements are rejected.
func (e ProviderEntry) OptStrings(key string) ([]string, error) {
	v, ok := e.Options[key]
	if !ok {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("config: option %q: want a list, got %T", key, v)
	}
	out := make([]string, 0, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("config: option %q[%d]: want a string, got %T", key, i, item)
		}
		out = append(out, s)
	}
	return out, nil
}

// OptStringMap returns the mapping option key with string values.
func (e ProviderEntry) OptStringMap(key string) (map[string]string, error) {
	v, ok := e.Options[key]
	if !ok {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("config: option %q: want a mapping, got %T", key, v)
	}
	out := make(map[string]string, len(m))
	for k, item := range m {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("config: option %q.%s: want a string, got %T", key, k, item)
		}
		out[k] = s
	}
	return out, nil
}
