package models

import "time"

// UsageRecord is the immutable ledger entry for one attempted provider call.
// Failed attempts are recorded with zero tokens and cost so they still count
// toward request ceilings.
type UsageRecord struct {
	ID           string    `json:"id"`
	Provider     Provider  `json:"provider"`
	Model        string    `json:"model"`
	Feature      string    `json:"feature,omitempty"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	TotalTokens  int       `json:"total_tokens"`
	Cost         float64   `json:"cost_usd"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// MonthlyStats aggregates ledger entries for one provider and calendar month.
// Cost sums successful records only; failures are counted separately.
type MonthlyStats struct {
	Month          string    `json:"month"` // YYYY-MM
	Provider       Provider  `json:"provider"`
	TotalRequests  int       `json:"total_requests"`
	FailedRequests int       `json:"failed_requests"`
	TotalTokens    int64     `json:"total_tokens"`
	TotalCost      float64   `json:"total_cost_usd"`
	LastRequestAt  time.Time `json:"last_request_at"`
}

// UsageStatus is the read-only snapshot rendered by status indicators.
type UsageStatus struct {
	RateLimits         RateLimitStatus `json:"rate_limits"`
	MonthlyUsage       float64         `json:"monthly_usage_usd"`
	MonthlyLimit       float64         `json:"monthly_limit_usd"`
	RecentRequestCount int             `json:"recent_request_count"`
}
