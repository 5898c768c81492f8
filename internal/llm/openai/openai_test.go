package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/newthinker/quantbench/internal/core"
	"github.com/newthinker/quantbench/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_ImplementsInterface(t *testing.T) {
	var _ llm.Provider = (*Provider)(nil)
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New("", "model", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrConfigMissing))
}

func TestNew_DefaultModel(t *testing.T) {
	p, err := New("test-key", "", "")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", p.model)
}

func TestComplete(t *testing.T) {
	var req struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-test",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Drawdown was shallow."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 30, "completion_tokens": 5, "total_tokens": 35}
		}`))
	}))
	defer srv.Close()

	p, err := New("test-key", "gpt-test", srv.URL)
	require.NoError(t, err)

	out, err := p.Complete(context.Background(), llm.Prompt{System: "analyst", User: "summarize"})
	require.NoError(t, err)
	assert.Equal(t, "Drawdown was shallow.", out.Text)
	assert.Equal(t, 30, out.InputTokens)
	assert.Equal(t, "stop", out.StopReason)

	assert.Equal(t, "gpt-test", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "summarize", req.Messages[1].Content)
}

func TestComplete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	p, err := New("test-key", "", srv.URL)
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), llm.Prompt{User: "hi"})
	assert.True(t, errors.Is(err, core.ErrLLMFailed))
}
