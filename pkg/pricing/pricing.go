package pricing

import (
	"math"

	"github.com/tandemhq/aigate/pkg/models"
)

// Estimator maps model identifiers and token counts to monetary cost, and
// provides a cheap token-count heuristic for pre-flight checks.
//
// Unknown models cost zero: pricing fails open so a missing table row never
// blocks a request. Ceiling checks are the rate limiter's job and fail closed.
type Estimator struct {
	table map[string]models.ModelPricing
}

// defaultPricing is the embedded per-1K token price table. Config entries
// override or extend it.
var defaultPricing = []models.ModelPricing{
	{Model: "gpt-4o", PromptCost: 0.0025, CompletionCost: 0.0100},
	{Model: "gpt-4o-mini", PromptCost: 0.00015, CompletionCost: 0.0006},
	{Model: "gpt-4.1", PromptCost: 0.0020, CompletionCost: 0.0080},
	{Model: "gpt-4.1-mini", PromptCost: 0.0004, CompletionCost: 0.0016},
	{Model: "claude-opus-4-1", PromptCost: 0.0150, CompletionCost: 0.0750},
	{Model: "claude-sonnet-4-5", PromptCost: 0.0030, CompletionCost: 0.0150},
	{Model: "claude-haiku-4-5", PromptCost: 0.0010, CompletionCost: 0.0050},
	{Model: "claude-3-5-haiku-latest", PromptCost: 0.0008, CompletionCost: 0.0040},
}

// New creates an Estimator from the embedded table plus config overrides.
func New(overrides []models.ModelPricing) *Estimator {
	table := make(map[string]models.ModelPricing, len(defaultPricing)+len(overrides))
	for _, p := range defaultPricing {
		table[p.Model] = p
	}
	for _, p := range overrides {
		table[p.Model] = p
	}
	return &Estimator{table: table}
}

// EstimateTokens approximates the token count of text as characters divided
// by four. Used only for pre-flight budget checks, never for billing truth.
func (e *Estimator) EstimateTokens(text string) int {
	return len(text) / 4
}

// Cost returns the USD cost of a call, rounded to 4 decimal places so many
// small charges do not accumulate float drift. Unknown model returns 0.
func (e *Estimator) Cost(model string, inputTokens, outputTokens int) float64 {
	p, ok := e.table[model]
	if !ok {
		return 0
	}
	cost := (float64(inputTokens)/1000)*p.PromptCost + (float64(outputTokens)/1000)*p.CompletionCost
	return math.Round(cost*10000) / 10000
}

// Known reports whether the table has a price for model.
func (e *Estimator) Known(model string) bool {
	_, ok := e.table[model]
	return ok
}
