// Package anthropic provides the Anthropic Messages API backend for the gateway.
package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"chatgate/internal/core"
	"chatgate/internal/llmclient"
	"chatgate/internal/providers"
)

const (
	defaultBaseURL      = "https://api.anthropic.com/v1"
	anthropicAPIVersion = "2023-06-01"
	defaultMaxTokens    = 4096
)

// Registration provides factory registration for the Anthropic provider.
var Registration = providers.Registration{
	Type: "anthropic",
	New: func(opts providers.ProviderOptions) (core.Provider, error) {
		return New(opts), nil
	},
}

// Provider implements core.Provider for Anthropic
type Provider struct {
	client  *llmclient.Client
	baseURL string
	apiKey  string
	version string
	headers map[string]string
}

// New creates an Anthropic backend from the provider's settings.
// Recognised settings: api_key, base_url, version, max_retries, headers.
func New(opts providers.ProviderOptions) *Provider {
	p := &Provider{
		baseURL: strings.TrimRight(opts.Settings.String("base_url", defaultBaseURL), "/"),
		apiKey:  opts.Settings.String("api_key", ""),
		version: opts.Settings.String("version", anthropicAPIVersion),
		headers: opts.Settings.StringMap("headers"),
	}
	cfg := llmclient.DefaultConfig(opts.Name, p.baseURL)
	cfg.MaxRetries = opts.Settings.Int("max_retries", cfg.MaxRetries)
	p.client = llmclient.New(opts.HTTPClient, cfg, p.setHeaders)
	return p
}

// setHeaders sets the required headers for Anthropic API requests
func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", p.version)
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}
	if requestID := core.GetRequestID(req.Context()); requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}
}

// convertToAnthropicRequest builds the Messages API body. String system
// messages move to the top-level "system" field; every other message is
// forwarded as given. Extra parameters are merged first so model, messages
// and system cannot be overridden by them.
func convertToAnthropicRequest(req *core.InvokeRequest) map[string]any {
	body := make(map[string]any, len(req.Params)+4)
	for k, v := range req.Params {
		body[k] = v
	}
	if _, ok := body["max_tokens"]; !ok {
		body["max_tokens"] = defaultMaxTokens
	}

	var system []string
	messages := make([]core.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if role, _ := msg["role"].(string); role == "system" {
			if content, ok := msg["content"].(string); ok {
				system = append(system, content)
				continue
			}
		}
		messages = append(messages, msg)
	}
	if len(system) > 0 {
		body["system"] = strings.Join(system, "\n\n")
	}

	body["model"] = req.Model
	body["messages"] = messages
	return body
}

// ChatCompletion sends a Messages API request and returns the body unmodified.
func (p *Provider) ChatCompletion(ctx context.Context, req *core.InvokeRequest) (json.RawMessage, error) {
	return p.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/messages",
		Body:     convertToAnthropicRequest(req),
	})
}
