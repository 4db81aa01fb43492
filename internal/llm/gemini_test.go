package llm

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/genai"
)

type fakeGenerator struct {
	resp   *genai.GenerateContentResponse
	err    error
	model  string
	config *genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.config = config
	return f.resp, f.err
}

func TestGeminiProvider_Complete(t *testing.T) {
	fake := &fakeGenerator{
		resp: &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{
				{Content: &genai.Content{Parts: []*genai.Part{{Text: "{\"decisions\":"}, {Text: " []}"}}}},
				nil,
			},
			UsageMetadata: &genai.GenerateContentResponseUsageMetadata{TotalTokenCount: 42},
		},
	}
	p := &GeminiProvider{models: fake, config: DefaultConfig()}

	resp, err := p.Complete(context.Background(), CompletionRequest{System: "system", Prompt: "prompt", JSON: true})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if resp.Text != "{\"decisions\":\n[]}" {
		t.Errorf("Unexpected text: %q", resp.Text)
	}
	if resp.TokensUsed != 42 {
		t.Errorf("Expected 42 tokens, got %d", resp.TokensUsed)
	}
	if fake.model != geminiDefaultModel {
		t.Errorf("Expected default model %s, got %s", geminiDefaultModel, fake.model)
	}
	if fake.config.ResponseMIMEType != "application/json" {
		t.Errorf("Expected JSON MIME type, got %q", fake.config.ResponseMIMEType)
	}
	if fake.config.SystemInstruction == nil {
		t.Error("Expected system instruction")
	}
}

func TestGeminiProvider_Complete_Errors(t *testing.T) {
	p := &GeminiProvider{models: &fakeGenerator{err: errors.New("quota")}, config: DefaultConfig()}
	if _, err := p.Complete(context.Background(), CompletionRequest{Prompt: "prompt"}); err == nil {
		t.Error("Expected API error to propagate")
	}

	p = &GeminiProvider{models: &fakeGenerator{resp: &genai.GenerateContentResponse{}}, config: DefaultConfig()}
	if _, err := p.Complete(context.Background(), CompletionRequest{Prompt: "prompt"}); err == nil {
		t.Error("Expected error for empty response")
	}

	if _, err := p.Complete(context.Background(), CompletionRequest{Prompt: "   "}); err == nil {
		t.Error("Expected error for empty prompt")
	}
}

func TestGeminiProvider_RequiresKey(t *testing.T) {
	if _, err := NewGeminiProvider(context.Background(), Config{}); err == nil {
		t.Error("Expected error without API key")
	}
}
