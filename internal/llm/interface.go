package llm

import "context"

// Provider is a chat model that answers a single prompt.
type Provider interface {
	Name() string
	Complete(ctx context.Context, p Prompt) (*Completion, error)
}

// Prompt is one system plus user turn.
type Prompt struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// Completion is the model's answer.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
	StopReason   string
}

// DefaultMaxTokens is used when a Prompt leaves MaxTokens unset.
const DefaultMaxTokens = 1024

// Tokens returns p.MaxTokens or the default.
func (p Prompt) Tokens() int {
	if p.MaxTokens <= 0 {
		return DefaultMaxTokens
	}
	return p.MaxTokens
}
