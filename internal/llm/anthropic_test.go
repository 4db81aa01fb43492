package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newAnthropicServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("Expected path /v1/messages, got %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestAnthropicProvider_Complete_Success(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "test-key" {
			t.Errorf("Expected x-api-key test-key, got %q", r.Header.Get("X-Api-Key"))
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_123",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-5",
			"content": [{"type": "text", "text": "{\"results\": []}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 60, "output_tokens": 40}
		}`))
	}))
	defer server.Close()

	provider, err := NewAnthropicProvider(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	resp, err := provider.Complete(context.Background(), CompletionRequest{System: "audit", Prompt: "claims"})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if resp.Text != `{"results": []}` {
		t.Errorf("Unexpected text: %q", resp.Text)
	}
	if resp.TokensUsed != 100 {
		t.Errorf("Expected 100 tokens used, got %d", resp.TokensUsed)
	}
	if captured["model"] != anthropicDefaultModel {
		t.Errorf("Expected default model %s, got %v", anthropicDefaultModel, captured["model"])
	}
	if _, ok := captured["system"]; !ok {
		t.Error("Expected system prompt in request")
	}
}

func TestAnthropicProvider_Complete_APIError(t *testing.T) {
	server := newAnthropicServer(t, http.StatusBadRequest,
		`{"type": "error", "error": {"type": "invalid_request_error", "message": "bad request"}}`)
	defer server.Close()

	provider, _ := NewAnthropicProvider(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5 * time.Second})

	if _, err := provider.Complete(context.Background(), CompletionRequest{Prompt: "claims"}); err == nil {
		t.Error("Expected error for API failure")
	}
}

func TestAnthropicProvider_Complete_NoText(t *testing.T) {
	server := newAnthropicServer(t, http.StatusOK, `{
		"id": "msg_123",
		"type": "message",
		"role": "assistant",
		"model": "claude-sonnet-4-5",
		"content": [],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 1, "output_tokens": 0}
	}`)
	defer server.Close()

	provider, _ := NewAnthropicProvider(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5 * time.Second})

	if _, err := provider.Complete(context.Background(), CompletionRequest{Prompt: "claims"}); err == nil {
		t.Error("Expected error when response has no text block")
	}
}

func TestAnthropicProvider_RequiresKey(t *testing.T) {
	if _, err := NewAnthropicProvider(Config{}); err == nil {
		t.Error("Expected error without API key")
	}
}
