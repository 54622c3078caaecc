package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"

	"chatgate/internal/core"
)

// Configuration maps provider names to their opaque settings.
// It is loaded wholesale and never modified after parsing.
type Configuration map[string]core.ProviderSettings

// Loader reads and parses the provider configuration document.
// Every call to Load reads the source again.
type Loader struct {
	source         Source
	hooks          Hooks
	reuseUnchanged bool

	mu       sync.Mutex
	lastHash uint64
	last     Configuration
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithReuseUnchanged makes the loader skip parsing when the document bytes
// hash to the same value as the previous successful load.
func WithReuseUnchanged(enabled bool) LoaderOption {
	return func(l *Loader) {
		l.reuseUnchanged = enabled
	}
}

// WithLoaderHooks sets the observability hooks notified after each load.
func WithLoaderHooks(hooks Hooks) LoaderOption {
	return func(l *Loader) {
		if hooks != nil {
			l.hooks = hooks
		}
	}
}

// NewLoader creates a loader for the given source.
func NewLoader(source Source, opts ...LoaderOption) *Loader {
	l := &Loader{
		source: source,
		hooks:  NoopHooks{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Source returns the configured source.
func (l *Loader) Source() Source {
	return l.source
}

// Load reads the source and returns the parsed configuration.
// Failures are *core.GatewayError values of kind KindConfigMissing,
// KindConfigMalformed or KindConfigUnavailable.
func (l *Loader) Load(ctx context.Context) (Configuration, error) {
	cfg, err := l.load(ctx)
	l.hooks.OnConfigLoad(err)
	return cfg, err
}

func (l *Loader) load(ctx context.Context) (Configuration, error) {
	data, err := l.source.Read(ctx)
	if err != nil {
		if errors.Is(err, ErrSourceNotFound) {
			return nil, core.NewConfigError(core.KindConfigMissing, "Config file is missing", err)
		}
		return nil, core.NewConfigError(core.KindConfigUnavailable, "failed to read provider configuration", err)
	}

	var sum uint64
	if l.reuseUnchanged {
		sum = xxhash.Sum64(data)
		if cfg := l.previous(sum); cfg != nil {
			return cfg, nil
		}
	}

	cfg, err := ParseConfiguration(data, l.source.Format())
	if err != nil {
		return nil, core.NewConfigError(core.KindConfigMalformed, "failed to parse provider configuration", err)
	}

	if l.reuseUnchanged {
		l.mu.Lock()
		l.lastHash = sum
		l.last = cfg
		l.mu.Unlock()
	}
	return cfg, nil
}

func (l *Loader) previous(sum uint64) Configuration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.last != nil && l.lastHash == sum {
		return l.last
	}
	return nil
}

// ParseConfiguration parses a provider document. The top-level value must be
// an object whose keys are non-empty provider names; values are kept as
// opaque JSON settings.
func ParseConfiguration(data []byte, format string) (Configuration, error) {
	var raw map[string]json.RawMessage

	switch format {
	case FormatYAML:
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
		if doc == nil {
			return nil, fmt.Errorf("document is empty")
		}
		raw = make(map[string]json.RawMessage, len(doc))
		for name, value := range doc {
			encoded, err := json.Marshal(value)
			if err != nil {
				return nil, fmt.Errorf("provider %q: %w", name, err)
			}
			raw[name] = encoded
		}
	default:
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			return nil, fmt.Errorf("top-level value must be a JSON object")
		}
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	}

	cfg := make(Configuration, len(raw))
	for name, settings := range raw {
		if name == "" {
			return nil, fmt.Errorf("provider names must not be empty")
		}
		cfg[name] = core.NewProviderSettings(settings)
	}
	return cfg, nil
}
