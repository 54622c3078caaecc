// Package openai provides OpenAI-compatible chat completion backends for the gateway.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"chatgate/internal/core"
	"chatgate/internal/llmclient"
	"chatgate/internal/providers"
)

// TypeCompatible is the provider type for any server speaking the OpenAI
// chat completions API. It has no default base URL.
const TypeCompatible = "openai-compatible"

// defaultBaseURLs maps each OpenAI-compatible provider type to its API root.
var defaultBaseURLs = map[string]string{
	"openai":   "https://api.openai.com/v1",
	"groq":     "https://api.groq.com/openai/v1",
	"xai":      "https://api.x.ai/v1",
	"ollama":   "http://localhost:11434/v1",
	"mistral":  "https://api.mistral.ai/v1",
	"together": "https://api.together.xyz/v1",
	"deepseek": "https://api.deepseek.com/v1",
	"gemini":   "https://generativelanguage.googleapis.com/v1beta/openai",
}

// Registrations provides factory registration for every OpenAI-compatible type.
var Registrations = []providers.Registration{
	registration("openai"),
	registration("groq"),
	registration("xai"),
	registration("ollama"),
	registration("mistral"),
	registration("together"),
	registration("deepseek"),
	registration("gemini"),
	registration(TypeCompatible),
}

func registration(providerType string) providers.Registration {
	return providers.Registration{
		Type: providerType,
		New: func(opts providers.ProviderOptions) (core.Provider, error) {
			return New(providerType, opts)
		},
	}
}

// Provider implements core.Provider for OpenAI-compatible APIs
type Provider struct {
	client  *llmclient.Client
	baseURL string
	apiKey  string
	headers map[string]string
}

// New creates a backend of the given type from the provider's settings.
// Recognised settings: api_key, base_url, max_retries, headers.
func New(providerType string, opts providers.ProviderOptions) (*Provider, error) {
	baseURL := opts.Settings.String("base_url", defaultBaseURLs[providerType])
	if baseURL == "" {
		return nil, fmt.Errorf("provider %s: base_url is required for type %s", opts.Name, providerType)
	}

	p := &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  opts.Settings.String("api_key", ""),
		headers: opts.Settings.StringMap("headers"),
	}
	cfg := llmclient.DefaultConfig(opts.Name, p.baseURL)
	cfg.MaxRetries = opts.Settings.Int("max_retries", cfg.MaxRetries)
	p.client = llmclient.New(opts.HTTPClient, cfg, p.setHeaders)
	return p, nil
}

// setHeaders sets the required headers for OpenAI API requests
func (p *Provider) setHeaders(req *http.Request) {
	// Local servers such as ollama run without a key.
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	// Forward request ID if present in context using OpenAI's X-Client-Request-Id header.
	// OpenAI requires ASCII-only characters and max 512 bytes, otherwise returns 400.
	if requestID := core.GetRequestID(req.Context()); requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
		if isValidClientRequestID(requestID) {
			req.Header.Set("X-Client-Request-Id", requestID)
		}
	}
}

// isValidClientRequestID checks if the request ID is valid for OpenAI's X-Client-Request-Id header.
// OpenAI requires: ASCII characters only, max 512 characters.
func isValidClientRequestID(id string) bool {
	if len(id) > 512 {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] > 127 {
			return false
		}
	}
	return true
}

// isOSeriesModel reports whether the model is an OpenAI o-series model
// (o1, o3, o4) that requires max_completion_tokens instead of max_tokens.
func isOSeriesModel(model string) bool {
	m := strings.ToLower(model)
	// Non-reasoning models like gpt-4o start with "gpt-", not "o".
	return len(m) >= 2 && m[0] == 'o' && m[1] >= '0' && m[1] <= '9'
}

// requestBody merges the caller's extra parameters with model and messages.
// model and messages always win over parameters of the same name.
func requestBody(req *core.InvokeRequest) map[string]any {
	body := make(map[string]any, len(req.Params)+2)
	for k, v := range req.Params {
		body[k] = v
	}
	if isOSeriesModel(req.Model) {
		if v, ok := body["max_tokens"]; ok {
			if _, set := body["max_completion_tokens"]; !set {
				body["max_completion_tokens"] = v
			}
			delete(body, "max_tokens")
		}
	}
	messages := req.Messages
	if messages == nil {
		messages = []core.Message{}
	}
	body["model"] = req.Model
	body["messages"] = messages
	return body
}

// ChatCompletion sends a chat completion request and returns the body unmodified.
func (p *Provider) ChatCompletion(ctx context.Context, req *core.InvokeRequest) (json.RawMessage, error) {
	return p.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat/completions",
		Body:     requestBody(req),
	})
}
