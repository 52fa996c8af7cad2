package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tandemhq/aigate/pkg/config"
	"github.com/tandemhq/aigate/pkg/models"
)

func testCompletionRequest() models.CompletionRequest {
	return models.CompletionRequest{
		Provider: models.ProviderOpenAI,
		Model:    "gpt-4o",
		Messages: []models.ChatMessage{{Role: "user", Content: "hello"}},
	}
}

func TestOpenAIComplete(t *testing.T) {
	var gotAuth string
	var gotBody openAIRequest
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": "gpt-4o-2024-08-06",
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "hi there"}},
			},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
	defer upstream.Close()

	c := newOpenAIClient(upstream.URL, &http.Client{})
	result, err := c.Complete(context.Background(), "sk-secret", testCompletionRequest())
	if err != nil {
		t.Fatal(err)
	}

	if gotAuth != "Bearer sk-secret" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if gotBody.Model != "gpt-4o" || len(gotBody.Messages) != 1 {
		t.Errorf("unexpected upstream body: %+v", gotBody)
	}
	if result.Content != "hi there" {
		t.Errorf("unexpected content %q", result.Content)
	}
	if !result.HasUsage || result.TotalTokens != 15 {
		t.Errorf("unexpected usage: %+v", result)
	}
	if result.Model != "gpt-4o-2024-08-06" {
		t.Errorf("expected provider-reported model, got %q", result.Model)
	}
}

func TestOpenAICompleteAPIError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided"}}`))
	}))
	defer upstream.Close()

	c := newOpenAIClient(upstream.URL, &http.Client{})
	_, err := c.Complete(context.Background(), "sk-bad", testCompletionRequest())

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", apiErr.StatusCode)
	}
	if apiErr.Message != "Incorrect API key provided" {
		t.Errorf("expected parsed message, got %q", apiErr.Message)
	}
}

func TestOpenAICompleteNoChoices(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"model":"gpt-4o","choices":[]}`))
	}))
	defer upstream.Close()

	c := newOpenAIClient(upstream.URL, &http.Client{})
	if _, err := c.Complete(context.Background(), "sk-x", testCompletionRequest()); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestAnthropicComplete(t *testing.T) {
	var gotBody anthropicRequest
	var gotKey, gotVersion string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":   "claude-sonnet-4-5",
			"content": []map[string]string{{"type": "text", "text": "certainly"}},
			"usage":   map[string]int{"input_tokens": 20, "output_tokens": 8},
		})
	}))
	defer upstream.Close()

	c := newAnthropicClient(upstream.URL, &http.Client{})
	req := models.CompletionRequest{
		Provider: models.ProviderAnthropic,
		Model:    "claude-sonnet-4-5",
		Messages: []models.ChatMessage{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "hello"},
		},
	}
	result, err := c.Complete(context.Background(), "sk-ant-secret", req)
	if err != nil {
		t.Fatal(err)
	}

	if gotKey != "sk-ant-secret" || gotVersion != anthropicVersion {
		t.Errorf("unexpected headers: key=%q version=%q", gotKey, gotVersion)
	}
	// System message lifted out of the messages array.
	if gotBody.System != "be brief" {
		t.Errorf("expected system lifted, got %q", gotBody.System)
	}
	if len(gotBody.Messages) != 1 || gotBody.Messages[0].Role != "user" {
		t.Errorf("unexpected messages: %+v", gotBody.Messages)
	}
	if gotBody.MaxTokens != defaultAnthropicMaxTokens {
		t.Errorf("expected default max_tokens, got %d", gotBody.MaxTokens)
	}

	if result.Content != "certainly" {
		t.Errorf("unexpected content %q", result.Content)
	}
	if !result.HasUsage || result.TotalTokens != 28 {
		t.Errorf("expected input+output summed, got %+v", result)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(config.ProvidersConfig{
		OpenAIBaseURL:    "http://openai.example",
		AnthropicBaseURL: "http://anthropic.example",
	})

	if _, err := r.Client(models.ProviderOpenAI); err != nil {
		t.Error(err)
	}
	if _, err := r.Client(models.ProviderAnthropic); err != nil {
		t.Error(err)
	}
	if _, err := r.Client("mystery"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestRegistryValidate(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer upstream.Close()

	r := NewRegistry(config.ProvidersConfig{OpenAIBaseURL: upstream.URL})

	if err := r.Validate(context.Background(), models.ProviderOpenAI, "sk-good"); err != nil {
		t.Errorf("expected valid key to pass, got %v", err)
	}

	err := r.Validate(context.Background(), models.ProviderOpenAI, "sk-bad")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 APIError, got %v", err)
	}
}

func TestExtractErrorMessage(t *testing.T) {
	if got := extractErrorMessage([]byte(`{"error":{"message":"boom"}}`)); got != "boom" {
		t.Errorf("expected boom, got %q", got)
	}
	if got := extractErrorMessage([]byte("plain text error")); got != "plain text error" {
		t.Errorf("expected raw fallback, got %q", got)
	}
}
