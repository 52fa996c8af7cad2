package models

// ChatMessage represents a single message in a chat conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the provider-neutral request accepted by the
// orchestrator. Feature names the calling product surface (template
// generation, coaching, analysis) for analytics only.
type CompletionRequest struct {
	Provider    Provider      `json:"provider"`
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Feature     string        `json:"feature,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

// CompletionResponse is the normalized result of a successful provider call.
type CompletionResponse struct {
	Content       string  `json:"content"`
	TokensUsed    int     `json:"tokens_used"`
	EstimatedCost float64 `json:"estimated_cost_usd"`
	ModelUsed     string  `json:"model_used"`
}
