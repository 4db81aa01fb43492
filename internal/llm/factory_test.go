package llm

import (
	"context"
	"testing"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		provider string
		apiKey   string
		wantName string
		wantErr  bool
	}{
		{"openai", "k", "openai", false},
		{"anthropic", "k", "anthropic", false},
		{"Claude", "k", "anthropic", false},
		{"ollama", "", "ollama", false},
		{"openai", "", "", true},
		{"mystery", "k", "", true},
		{"", "", "", false},
		{"rules", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			p, err := NewProvider(context.Background(), Config{Provider: tt.provider, APIKey: tt.apiKey})
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewProvider(%q) error = %v, wantErr %v", tt.provider, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if tt.wantName == "" {
				if p != nil {
					t.Errorf("Expected nil provider, got %s", p.Name())
				}
				return
			}
			if p == nil || p.Name() != tt.wantName {
				t.Errorf("Expected provider %s, got %v", tt.wantName, p)
			}
		})
	}
}
