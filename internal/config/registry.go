package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/mira/pkg/provider/executor"
	"github.com/MrWong99/mira/pkg/provider/recognizer"
	"github.com/MrWong99/mira/pkg/provider/relay"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// RecognizerFactory builds a recognizer session for audio at sampleRate.
type RecognizerFactory func(entry ProviderEntry, sampleRate int) (recognizer.Recognizer, error)

// ExecutorFactory builds an action executor.
type ExecutorFactory func(entry ProviderEntry) (executor.Executor, error)

// RelayFactory builds a fallback relay.
type RelayFactory func(entry ProviderEntry) (relay.Relay, error)

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	recognizers map[string]RecognizerFactory
	executors   map[string]ExecutorFactory
	relays      map[string]RelayFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		recognizers: make(map[string]RecognizerFactory),
		executors:   make(map[string]ExecutorFactory),
		relays:      make(map[string]RelayFactory),
	}
}

// RegisterRecognizer registers a recognizer factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterRecognizer(name string, factory RecognizerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recognizers[name] = factory
}

// RegisterExecutor registers an executor factory under name.
func (r *Registry) RegisterExecutor(name string, factory ExecutorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[name] = factory
}

// RegisterRelay registers a relay factory under name.
func (r *Registry) RegisterRelay(name string, factory RelayFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.relays[name] = factory
}

// CreateRecognizer instantiates a recognizer using the factory registered
// under entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateRecognizer(entry ProviderEntry, sampleRate int) (recognizer.Recognizer, error) {
	r.mu.RLock()
	factory, ok := r.recognizers[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: recognizer/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry, sampleRate)
}

// CreateExecutor instantiates an executor using the factory registered under entry.Name.
func (r *Registry) CreateExecutor(entry ProviderEntry) (executor.Executor, error) {
	r.mu.RLock()
	factory, ok := r.executors[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: executor/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateRelay instantiates a relay using the factory registered under entry.Name.
func (r *Registry) CreateRelay(entry ProviderEntry) (relay.Relay, error) {
	r.mu.RLock()
	factory, ok := r.relays[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: relay/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
