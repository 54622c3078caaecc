package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"chatgate/internal/core"
)

// ProviderOptions holds what a provider constructor needs.
type ProviderOptions struct {
	// Name is the configured provider name.
	Name string
	// Settings are the provider's opaque settings.
	Settings core.ProviderSettings
	// HTTPClient is shared by all backends created by one factory.
	HTTPClient *http.Client
}

// Registration describes a provider backend type for factory registration.
type Registration struct {
	Type string
	New  func(opts ProviderOptions) (core.Provider, error)
}

// ProviderFactory builds provider backends from settings and implements
// core.Invoker on top of them. A backend is built per invocation, so changes
// to a provider's settings take effect on the next request.
type ProviderFactory struct {
	mu         sync.RWMutex
	builders   map[string]func(ProviderOptions) (core.Provider, error)
	httpClient *http.Client
}

// NewProviderFactory creates an empty factory. A nil httpClient selects
// http.DefaultClient.
func NewProviderFactory(httpClient *http.Client) *ProviderFactory {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ProviderFactory{
		builders:   make(map[string]func(ProviderOptions) (core.Provider, error)),
		httpClient: httpClient,
	}
}

// Add registers provider types. Later registrations replace earlier ones.
func (f *ProviderFactory) Add(regs ...Registration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, reg := range regs {
		f.builders[reg.Type] = reg.New
	}
}

// RegisteredTypes returns the registered provider types in sorted order.
func (f *ProviderFactory) RegisteredTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	types := make([]string, 0, len(f.builders))
	for t := range f.builders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Create builds the backend for a configured provider. The backend type is
// the settings' "type" field, or the provider name when it is absent.
func (f *ProviderFactory) Create(name string, settings core.ProviderSettings) (core.Provider, error) {
	providerType := settings.String("type", name)

	f.mu.RLock()
	builder, ok := f.builders[providerType]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider type: %s", providerType)
	}

	return builder(ProviderOptions{
		Name:       name,
		Settings:   settings,
		HTTPClient: f.httpClient,
	})
}

// Invoke implements core.Invoker.
func (f *ProviderFactory) Invoke(ctx context.Context, req *core.InvokeRequest) (json.RawMessage, error) {
	p, err := f.Create(req.Provider, req.Settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider %s: %w", req.Provider, err)
	}
	return p.ChatCompletion(ctx, req)
}
