package core

import (
	"bytes"
	"encoding/json"
)

// Message is a single chat message. The gateway never inspects its fields
// beyond JSON decoding; it is forwarded to the provider as received.
type Message map[string]any

// ChatCompletionRequest represents the incoming chat completion request
type ChatCompletionRequest struct {
	// Model identifier of the form "provider:model", e.g. "openai:gpt-4".
	Model string `json:"model" example:"openai:gpt-4"`
	// Messages in chat completion format, e.g. [{"role": "user", "content": "Hello!"}].
	Messages []Message `json:"messages"`
	// Kwargs holds provider-specific parameters passed through verbatim.
	Kwargs map[string]any `json:"kwargs,omitempty"`
}

// UnmarshalJSON decodes numbers in messages and kwargs as json.Number so
// integers beyond float64 precision reach the provider unchanged.
func (r *ChatCompletionRequest) UnmarshalJSON(data []byte) error {
	type plain ChatCompletionRequest
	var p plain
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return err
	}
	*r = ChatCompletionRequest(p)
	return nil
}

// ChatCompletionResponse is the canonical envelope around a provider result.
type ChatCompletionResponse struct {
	Response json.RawMessage `json:"response" swaggertype:"object"`
}

// ActiveProvidersResponse lists the providers present in the configuration.
type ActiveProvidersResponse struct {
	Providers []string `json:"providers"`
}
