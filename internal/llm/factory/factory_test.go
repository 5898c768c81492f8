package factory

import (
	"errors"
	"testing"

	"github.com/newthinker/quantbench/internal/config"
	"github.com/newthinker/quantbench/internal/core"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.LLMConfig
		wantName string
		wantErr  error
	}{
		{
			name: "claude",
			cfg: config.LLMConfig{
				Provider: "claude",
				Claude:   config.ClaudeConfig{APIKey: "test-key", Model: "claude-3-sonnet"},
			},
			wantName: "claude",
		},
		{
			name: "openai",
			cfg: config.LLMConfig{
				Provider: "openai",
				OpenAI:   config.OpenAIConfig{APIKey: "test-key", Model: "gpt-4"},
			},
			wantName: "openai",
		},
		{
			name:    "claude missing key",
			cfg:     config.LLMConfig{Provider: "claude"},
			wantErr: core.ErrConfigMissing,
		},
		{
			name:    "not configured",
			cfg:     config.LLMConfig{},
			wantErr: core.ErrConfigMissing,
		},
		{
			name:    "unknown",
			cfg:     config.LLMConfig{Provider: "ollama"},
			wantErr: core.ErrConfigInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.cfg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("New() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Name() != tt.wantName {
				t.Errorf("expected %s provider, got %s", tt.wantName, p.Name())
			}
		})
	}
}
