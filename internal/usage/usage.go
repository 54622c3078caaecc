// Package usage keeps a ledger of dispatches: who was called, how it ended,
// how long it took and how many tokens it used. The ledger backs
// GET /usage/summary.
package usage

import (
	"context"
	"time"
)

// OutcomeSuccess marks a dispatch that returned a provider result. Failed
// dispatches carry the name of their error kind instead.
const OutcomeSuccess = "success"

// BatchFlushThreshold is the number of queued entries that triggers a
// flush without waiting for the timer.
const BatchFlushThreshold = 100

// tableName is the SQL table and MongoDB collection of the ledger.
const tableName = "dispatch_usage"

// UsageEntry is one dispatch in the ledger.
type UsageEntry struct {
	ID        string    `json:"id" bson:"_id"`
	RequestID string    `json:"request_id" bson:"request_id"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`

	// Provider and Model are the two halves of the requested identifier.
	// Provider is empty when the identifier had no separator.
	Provider string `json:"provider" bson:"provider"`
	Model    string `json:"model" bson:"model"`
	// ResultModel is the model named in the provider result, if any.
	ResultModel string `json:"result_model,omitempty" bson:"result_model,omitempty"`

	Outcome   string `json:"outcome" bson:"outcome"`
	LatencyMs int64  `json:"latency_ms" bson:"latency_ms"`

	InputTokens  int `json:"input_tokens" bson:"input_tokens"`
	OutputTokens int `json:"output_tokens" bson:"output_tokens"`
	TotalTokens  int `json:"total_tokens" bson:"total_tokens"`
}

// Succeeded reports whether the dispatch returned a result.
func (e *UsageEntry) Succeeded() bool {
	return e.Outcome == OutcomeSuccess
}

// UsageStore persists ledger entries. Implementations must be safe for
// concurrent use. Entries whose ID is already stored are skipped.
type UsageStore interface {
	WriteBatch(ctx context.Context, entries []*UsageEntry) error
	// Close stops background work; the connection belongs to storage.Conn.
	Close() error
}

// Config controls ledger recording.
type Config struct {
	Enabled bool

	// BufferSize is the capacity of the in-memory entry queue.
	BufferSize int

	FlushInterval time.Duration

	// RetentionDays is how long entries are kept; 0 keeps them forever.
	RetentionDays int
}

func DefaultConfig() Config {
	return Config{
		BufferSize:    1000,
		FlushInterval: 5 * time.Second,
		RetentionDays: 90,
	}
}
