package providers

import (
	"encoding/json"

	"chatgate/internal/core"
)

// Normalize wraps a raw provider result in the canonical envelope.
// The payload is neither copied nor reinterpreted.
func Normalize(raw json.RawMessage) *core.ChatCompletionResponse {
	return &core.ChatCompletionResponse{Response: raw}
}
