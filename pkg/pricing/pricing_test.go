package pricing

import (
	"testing"

	"github.com/tandemhq/aigate/pkg/models"
)

func TestCost(t *testing.T) {
	e := New(nil)

	// gpt-4o: $0.0025/1K prompt, $0.0100/1K completion.
	got := e.Cost("gpt-4o", 1000, 1000)
	if got != 0.0125 {
		t.Errorf("expected 0.0125, got %v", got)
	}

	// Rounded to 4 decimal places.
	got = e.Cost("gpt-4o", 123, 45)
	if got != 0.0008 {
		t.Errorf("expected 0.0008, got %v", got)
	}
}

func TestCostUnknownModelIsFree(t *testing.T) {
	e := New(nil)
	if got := e.Cost("gpt-99-experimental", 100000, 100000); got != 0 {
		t.Errorf("expected 0 for unknown model, got %v", got)
	}
	if e.Known("gpt-99-experimental") {
		t.Error("expected unknown model to be unknown")
	}
}

func TestConfigOverrides(t *testing.T) {
	e := New([]models.ModelPricing{
		{Model: "gpt-4o", PromptCost: 1.0, CompletionCost: 2.0},
		{Model: "my-finetune", PromptCost: 0.5, CompletionCost: 0.5},
	})

	if got := e.Cost("gpt-4o", 1000, 0); got != 1.0 {
		t.Errorf("expected override to win, got %v", got)
	}
	if !e.Known("my-finetune") {
		t.Error("expected config-added model to be known")
	}
	// Untouched defaults survive.
	if !e.Known("claude-sonnet-4-5") {
		t.Error("expected default table entry to survive overrides")
	}
}

func TestEstimateTokens(t *testing.T) {
	e := New(nil)
	if got := e.EstimateTokens("12345678"); got != 2 {
		t.Errorf("expected 2, got %d", got)
	}
	if got := e.EstimateTokens("abc"); got != 0 {
		t.Errorf("expected 0 for short text, got %d", got)
	}
}
