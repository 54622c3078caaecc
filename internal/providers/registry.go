// Package providers implements the provider dispatch core: loading the
// provider configuration, answering registry lookups, parsing model
// identifiers and dispatching completions to provider backends.
package providers

import (
	"errors"
	"fmt"
	"sort"

	"chatgate/internal/core"
)

// ErrProviderNotFound is returned by SettingsFor for an unconfigured provider.
var ErrProviderNotFound = errors.New("provider not configured")

// Registry is a read-only view over one Configuration.
// A Registry is built per request and never mutated, so it is safe to
// share between goroutines without locking.
type Registry struct {
	settings map[string]core.ProviderSettings
	names    []string
}

// NewRegistry copies cfg into a new registry.
func NewRegistry(cfg Configuration) *Registry {
	r := &Registry{
		settings: make(map[string]core.ProviderSettings, len(cfg)),
		names:    make([]string, 0, len(cfg)),
	}
	for name, settings := range cfg {
		r.settings[name] = settings
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r
}

// Contains reports whether the provider is configured.
func (r *Registry) Contains(provider string) bool {
	if r == nil {
		return false
	}
	_, ok := r.settings[provider]
	return ok
}

// SettingsFor returns the provider's settings or ErrProviderNotFound.
func (r *Registry) SettingsFor(provider string) (core.ProviderSettings, error) {
	if r != nil {
		if settings, ok := r.settings[provider]; ok {
			return settings, nil
		}
	}
	return core.ProviderSettings{}, fmt.Errorf("%w: %s", ErrProviderNotFound, provider)
}

// ListProviders returns the configured provider names in sorted order.
func (r *Registry) ListProviders() []string {
	if r == nil {
		return []string{}
	}
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}
