package llm

import (
	"context"
	"sync"
)

// stubProvider returns canned replies and records prompts
type stubProvider struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []CompletionRequest
}

func (s *stubProvider) Name() string  { return "stub" }
func (s *stubProvider) Model() string { return "stub-model" }

func (s *stubProvider) IsAvailable(ctx context.Context) bool { return true }

func (s *stubProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, req)
	if s.err != nil {
		return nil, s.err
	}
	return &CompletionResponse{Text: s.reply, Model: "stub-model", TokensUsed: 10}, nil
}
