package models

import "time"

// Provider identifies an upstream AI completion provider.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Known reports whether p is a supported provider.
func (p Provider) Known() bool {
	return p == ProviderOpenAI || p == ProviderAnthropic
}

// Credential is a named, provider-scoped API secret with its own monthly budget.
// The secret itself never leaves the keystore in struct form.
type Credential struct {
	ID            string    `json:"id"`
	Provider      Provider  `json:"provider"`
	Name          string    `json:"name"`
	Active        bool      `json:"active"`
	MonthlyBudget float64   `json:"monthly_budget_usd"`
	CurrentSpend  float64   `json:"current_spend_usd"` // derived from the ledger, not authoritative
	CreatedAt     time.Time `json:"created_at"`
	LastUsedAt    time.Time `json:"last_used_at,omitempty"`
}
