package usage

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"chatgate/internal/core"
	"chatgate/internal/providers"
)

// Dispatch is what the server knows about a finished dispatch.
type Dispatch struct {
	RequestID string
	// Model is the identifier as requested, e.g. "openai:gpt-4o".
	Model   string
	Result  json.RawMessage
	Err     error
	Elapsed time.Duration
}

// tokenLayout locates input/output/total counts in one result family.
// total is empty when the family does not report it.
type tokenLayout struct {
	object, input, output, total string
}

var tokenLayouts = []tokenLayout{
	// OpenAI chat completions and every compatible API.
	{"usage", "usage.prompt_tokens", "usage.completion_tokens", "usage.total_tokens"},
	// Anthropic Messages API.
	{"usage", "usage.input_tokens", "usage.output_tokens", ""},
	// Gemini generateContent.
	{"usageMetadata", "usageMetadata.promptTokenCount", "usageMetadata.candidatesTokenCount", "usageMetadata.totalTokenCount"},
}

// NewEntry turns a finished dispatch into a ledger entry.
func NewEntry(d Dispatch) *UsageEntry {
	entry := &UsageEntry{
		ID:        uuid.NewString(),
		RequestID: d.RequestID,
		Timestamp: time.Now().UTC(),
		Model:     d.Model,
		Outcome:   Outcome(d.Err),
		LatencyMs: d.Elapsed.Milliseconds(),
	}
	if id, err := providers.ParseModelID(d.Model); err == nil {
		entry.Provider = id.Provider
		entry.Model = id.Name
	}
	if d.Err == nil {
		countTokens(entry, d.Result)
	}
	return entry
}

// Outcome names how a dispatch ended: OutcomeSuccess for a nil error,
// otherwise the error kind, with internal_error for untyped errors.
func Outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	var gatewayErr *core.GatewayError
	if errors.As(err, &gatewayErr) {
		return gatewayErr.Kind.String()
	}
	return "internal_error"
}

func countTokens(entry *UsageEntry, raw json.RawMessage) {
	if !gjson.ValidBytes(raw) {
		return
	}
	result := gjson.ParseBytes(raw)
	entry.ResultModel = result.Get("model").String()

	for _, layout := range tokenLayouts {
		if !result.Get(layout.object).IsObject() {
			continue
		}
		input, output := result.Get(layout.input), result.Get(layout.output)
		if !input.Exists() && !output.Exists() {
			continue
		}
		entry.InputTokens = int(input.Int())
		entry.OutputTokens = int(output.Int())
		entry.TotalTokens = entry.InputTokens + entry.OutputTokens
		if layout.total != "" {
			if total := result.Get(layout.total); total.Exists() {
				entry.TotalTokens = int(total.Int())
			}
		}
		return
	}
}
