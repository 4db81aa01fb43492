package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestOllamaProvider_Complete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("Expected path /api/generate, got %s", r.URL.Path)
		}

		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		if req.Model != "llama3.1:8b" {
			t.Errorf("Expected model llama3.1:8b, got %s", req.Model)
		}
		if req.Stream {
			t.Error("Expected non-streaming request")
		}
		if req.Format != "json" {
			t.Errorf("Expected json format, got %q", req.Format)
		}
		if req.System != "system" {
			t.Errorf("Expected system prompt, got %q", req.System)
		}

		_ = json.NewEncoder(w).Encode(ollamaResponse{
			Model:           "llama3.1:8b",
			Response:        `{"decisions": []}`,
			Done:            true,
			PromptEvalCount: 30,
			EvalCount:       12,
		})
	}))
	defer server.Close()

	provider, _ := NewOllamaProvider(Config{BaseURL: server.URL, Model: "llama3.1:8b", Timeout: 5 * time.Second})

	resp, err := provider.Complete(context.Background(), CompletionRequest{System: "system", Prompt: "prompt", JSON: true})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Text != `{"decisions": []}` {
		t.Errorf("Unexpected text: %q", resp.Text)
	}
	if resp.TokensUsed != 42 {
		t.Errorf("Expected 42 tokens used, got %d", resp.TokensUsed)
	}
}

func TestOllamaProvider_Complete_EstimatesTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaResponse{Model: "m", Response: "12345678", Done: true})
	}))
	defer server.Close()

	provider, _ := NewOllamaProvider(Config{BaseURL: server.URL, Model: "m"})

	resp, err := provider.Complete(context.Background(), CompletionRequest{Prompt: "abcdefgh"})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.TokensUsed != 4 {
		t.Errorf("Expected estimated 4 tokens, got %d", resp.TokensUsed)
	}
}

func TestOllamaProvider_Complete_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": "model 'missing' not found"}`))
	}))
	defer server.Close()

	provider, _ := NewOllamaProvider(Config{BaseURL: server.URL, Model: "missing"})

	_, err := provider.Complete(context.Background(), CompletionRequest{Prompt: "prompt"})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("Expected API error message, got %v", err)
	}
}

func TestOllamaProvider_Complete_MalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	provider, _ := NewOllamaProvider(Config{BaseURL: server.URL, Model: "m"})

	if _, err := provider.Complete(context.Background(), CompletionRequest{Prompt: "prompt"}); err == nil {
		t.Error("Expected error for malformed response")
	}
}

func TestOllamaProvider_Complete_NoModel(t *testing.T) {
	provider, _ := NewOllamaProvider(Config{})

	_, err := provider.Complete(context.Background(), CompletionRequest{Prompt: "prompt"})
	if err == nil || !strings.Contains(err.Error(), "model must be specified") {
		t.Errorf("Expected missing model error, got %v", err)
	}
}

func TestOllamaProvider_IsAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			_, _ = w.Write([]byte(`{"models": []}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	provider, _ := NewOllamaProvider(Config{BaseURL: server.URL})
	if !provider.IsAvailable(context.Background()) {
		t.Error("Expected provider to be available")
	}

	down, _ := NewOllamaProvider(Config{BaseURL: "http://127.0.0.1:1", Timeout: 500 * time.Millisecond})
	if down.IsAvailable(context.Background()) {
		t.Error("Expected unreachable provider to be unavailable")
	}
}

func TestNewOllamaProxyFunc(t *testing.T) {
	proxy := newOllamaProxyFunc("http://proxy:8080", "http://secure-proxy:8443")

	httpsReq := httptest.NewRequest(http.MethodGet, "https://example.com", nil)
	u, err := proxy(httpsReq)
	if err != nil || u.Host != "secure-proxy:8443" {
		t.Errorf("Expected https proxy, got %v (%v)", u, err)
	}

	httpReq := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	u, err = proxy(httpReq)
	if err != nil || u.Host != "proxy:8080" {
		t.Errorf("Expected http proxy, got %v (%v)", u, err)
	}
}
