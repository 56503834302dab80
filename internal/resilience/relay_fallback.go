package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/mira/pkg/provider/relay"
)

// RelayFallback implements [relay.Relay] over several relays. An invalid
// prompt is rejected by the first relay without failover.
type RelayFallback struct {
	group *FallbackGroup[relay.Relay]
}

var _ relay.Relay = (*RelayFallback)(nil)

// NewRelayFallback creates a [RelayFallback] with primary as the preferred
// relay.
func NewRelayFallback(primary relay.Relay, primaryName string, cfg FallbackConfig) *RelayFallback {
	if cfg.Permanent == nil {
		cfg.Permanent = permanentRelayError
	}
	return &RelayFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another relay.
func (f *RelayFallback) AddFallback(name string, r relay.Relay) {
	f.group.AddFallback(name, r)
}

// States returns the breaker state of every relay keyed by name.
func (f *RelayFallback) States() map[string]State {
	return f.group.States()
}

// Ask implements [relay.Relay].
func (f *RelayFallback) Ask(ctx context.Context, prompt string) (string, error) {
	return Do(ctx, f.group, func(ctx context.Context, r relay.Relay) (string, error) {
		return r.Ask(ctx, prompt)
	})
}

func permanentRelayError(err error) bool {
	return errors.Is(err, relay.ErrPromptTooLong) || errors.Is(err, relay.ErrEmptyPrompt)
}
