package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tandemhq/aigate/pkg/config"
	"github.com/tandemhq/aigate/pkg/models"
)

// Client performs calls against one upstream AI provider.
type Client interface {
	// Complete performs a single chat completion call with the given secret.
	Complete(ctx context.Context, secret string, req models.CompletionRequest) (*Result, error)
	// Validate performs a cheap live call to verify the secret is accepted.
	Validate(ctx context.Context, secret string) error
}

// Result is a provider response normalized across adapters. HasUsage is false
// when the provider omitted usage figures and token counts must fall back to
// the estimator's heuristic.
type Result struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	HasUsage     bool
}

// APIError is a non-2xx response from a provider. Message carries the
// provider's own error text verbatim when present.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.StatusCode, e.Message)
}

// Registry holds one client per supported provider.
type Registry struct {
	clients map[models.Provider]Client
}

// NewRegistry creates clients for all supported providers from config.
// All clients share one transport; per-call deadlines come from the context.
func NewRegistry(cfg config.ProvidersConfig) *Registry {
	httpClient := &http.Client{}
	return &Registry{
		clients: map[models.Provider]Client{
			models.ProviderOpenAI:    newOpenAIClient(cfg.OpenAIBaseURL, httpClient),
			models.ProviderAnthropic: newAnthropicClient(cfg.AnthropicBaseURL, httpClient),
		},
	}
}

// Client returns the adapter for a provider.
func (r *Registry) Client(p models.Provider) (Client, error) {
	c, ok := r.clients[p]
	if !ok {
		return nil, fmt.Errorf("unsupported provider: %s", p)
	}
	return c, nil
}

// Validate implements keystore.Validator using the provider's adapter.
func (r *Registry) Validate(ctx context.Context, p models.Provider, secret string) error {
	c, err := r.Client(p)
	if err != nil {
		return err
	}
	return c.Validate(ctx, secret)
}
