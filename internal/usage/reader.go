package usage

import (
	"context"
	"time"
)

// UsageQueryParams filters a summary. Zero fields do not filter; dates are
// inclusive at day precision in UTC.
type UsageQueryParams struct {
	StartDate time.Time
	EndDate   time.Time
	Provider  string
}

// ProviderUsage holds the ledger totals of one provider. Requests counts
// every dispatch; Failures those that did not succeed.
type ProviderUsage struct {
	Provider     string `json:"provider"`
	Requests     int    `json:"requests"`
	Failures     int    `json:"failures"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	TotalTokens  int64  `json:"total_tokens"`
}

// UsageSummary is the per-provider view over a period plus its sum.
type UsageSummary struct {
	TotalRequests int             `json:"total_requests"`
	TotalFailures int             `json:"total_failures"`
	TotalInput    int64           `json:"total_input_tokens"`
	TotalOutput   int64           `json:"total_output_tokens"`
	TotalTokens   int64           `json:"total_tokens"`
	Providers     []ProviderUsage `json:"providers"`
}

// UsageReader summarizes the ledger.
type UsageReader interface {
	// GetSummary returns totals per provider, sorted by provider name.
	GetSummary(ctx context.Context, params UsageQueryParams) (*UsageSummary, error)
}

func newSummary(rows []ProviderUsage) *UsageSummary {
	summary := &UsageSummary{Providers: rows}
	if summary.Providers == nil {
		summary.Providers = []ProviderUsage{}
	}
	for _, row := range rows {
		summary.TotalRequests += row.Requests
		summary.TotalFailures += row.Failures
		summary.TotalInput += row.InputTokens
		summary.TotalOutput += row.OutputTokens
		summary.TotalTokens += row.TotalTokens
	}
	return summary
}

// dayBounds turns the inclusive dates into a half-open range [start, end).
// Unset dates stay zero.
func dayBounds(params UsageQueryParams) (start, end time.Time) {
	if !params.StartDate.IsZero() {
		start = startOfDay(params.StartDate)
	}
	if !params.EndDate.IsZero() {
		end = startOfDay(params.EndDate).AddDate(0, 0, 1)
	}
	return start, end
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
