package core

import (
	"context"
	"encoding/json"
)

// InvokeRequest carries one completion call to a provider backend.
type InvokeRequest struct {
	// Provider is the configured provider name (the identifier prefix).
	Provider string
	// Model is the provider-specific model name (the identifier remainder).
	Model string
	// Settings are the provider's opaque configuration settings.
	Settings ProviderSettings
	// Messages are forwarded unmodified.
	Messages []Message
	// Params are forwarded unmodified.
	Params map[string]any
}

// Invoker performs provider completions on behalf of the dispatcher.
// Implementations must be safe for concurrent use.
type Invoker interface {
	Invoke(ctx context.Context, req *InvokeRequest) (json.RawMessage, error)
}

// Provider defines the interface for LLM provider backends built from settings.
type Provider interface {
	// ChatCompletion executes a chat completion request and returns the
	// provider's response body untouched.
	ChatCompletion(ctx context.Context, req *InvokeRequest) (json.RawMessage, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, req *InvokeRequest) (json.RawMessage, error)

// Invoke calls f(ctx, req).
func (f InvokerFunc) Invoke(ctx context.Context, req *InvokeRequest) (json.RawMessage, error) {
	return f(ctx, req)
}
