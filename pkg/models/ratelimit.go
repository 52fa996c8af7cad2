package models

// RateLimitPolicy holds the fixed request and token ceilings applied to every
// provider. Zero means unlimited for that ceiling.
type RateLimitPolicy struct {
	HourlyRequests int   `json:"hourly_requests" yaml:"hourly_requests"`
	DailyRequests  int   `json:"daily_requests" yaml:"daily_requests"`
	HourlyTokens   int64 `json:"hourly_tokens" yaml:"hourly_tokens"`
	DailyTokens    int64 `json:"daily_tokens" yaml:"daily_tokens"`
}

// RateLimitStatus is the result of a sliding-window limit check.
// Reason is set only when Allowed is false, and reports the first tripped
// ceiling in priority order.
type RateLimitStatus struct {
	Allowed     bool    `json:"allowed"`
	Reason      string  `json:"reason,omitempty"`
	HourlyCount int     `json:"hourly_count"`
	HourlyLimit int     `json:"hourly_limit"`
	DailyCount  int     `json:"daily_count"`
	DailyLimit  int     `json:"daily_limit"`
	MonthlyCost float64 `json:"monthly_cost_usd"`
}
