package openai

import (
	"context"
	"fmt"

	"github.com/newthinker/quantbench/internal/core"
	"github.com/newthinker/quantbench/internal/llm"
	"github.com/sashabaranov/go-openai"
)

const defaultModel = "gpt-4o"

// Provider implements llm.Provider on the OpenAI chat completions API.
type Provider struct {
	client *openai.Client
	model  string
}

// New creates an OpenAI provider. baseURL is optional and lets any
// OpenAI-compatible endpoint be used.
func New(apiKey, model, baseURL string) (*Provider, error) {
	if apiKey == "" {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("openai API key required"))
	}
	if model == "" {
		model = defaultModel
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Provider{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

func (p *Provider) Name() string { return "openai" }

// Complete sends the system prompt and user prompt as one chat completion.
func (p *Provider) Complete(ctx context.Context, prompt llm.Prompt) (*llm.Completion, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if prompt.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: prompt.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt.User,
	})

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   prompt.Tokens(),
		Temperature: float32(prompt.Temperature),
	})
	if err != nil {
		return nil, core.WrapError(core.ErrLLMFailed, fmt.Errorf("openai: %w", err))
	}
	if len(resp.Choices) == 0 {
		return nil, core.WrapError(core.ErrLLMFailed, fmt.Errorf("openai: empty response"))
	}

	choice := resp.Choices[0]
	return &llm.Completion{
		Text:         choice.Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		StopReason:   string(choice.FinishReason),
	}, nil
}
