package backends

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jinrix-labs/prompt-forge-sub000/pkg/schema"
)

type chatRequest struct {
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func chatCompletion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "llama",
		"choices": []any{map[string]any{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 9, "completion_tokens": 3, "total_tokens": 12},
	})
	return string(b)
}

func groqServer(t *testing.T, status int, body string, inspect func(*http.Request, chatRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if inspect != nil {
			inspect(r, req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGroq_Complete(t *testing.T) {
	var got chatRequest
	var auth, path string
	srv := groqServer(t, http.StatusOK, chatCompletion("  a short poem \n"), func(r *http.Request, req chatRequest) {
		got = req
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
	})

	b := NewGroqBackend(GroqConfig{APIKey: "gsk-test", BaseURL: srv.URL + "/openai/v1"})
	out, err := b.Complete(context.Background(), "Write a poem", Options{})
	require.NoError(t, err)

	assert.Equal(t, "a short poem", out.Text)
	assert.Equal(t, 0, out.TokensUsed)

	assert.True(t, strings.HasSuffix(path, "/chat/completions"), path)
	assert.Equal(t, "Bearer gsk-test", auth)
	assert.Equal(t, defaultGroqModel, got.Model)
	assert.Equal(t, defaultMaxTokens, got.MaxTokens)
	assert.InDelta(t, defaultGroqTemperature, got.Temperature, 1e-6)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, defaultGroqSystemPrompt, got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "Write a poem", got.Messages[1].Content)
}

func TestGroq_Overrides(t *testing.T) {
	var got chatRequest
	srv := groqServer(t, http.StatusOK, chatCompletion("ok"), func(_ *http.Request, req chatRequest) { got = req })

	temp := 0.2
	b := NewGroqBackend(GroqConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := b.Complete(context.Background(), "p", Options{
		ModelName:    "mixtral-8x7b",
		SystemPrompt: "You write slogans.",
		MaxTokens:    64,
		Temperature:  &temp,
	})
	require.NoError(t, err)

	assert.Equal(t, "mixtral-8x7b", got.Model)
	assert.Equal(t, 64, got.MaxTokens)
	assert.InDelta(t, 0.2, got.Temperature, 1e-6)
	assert.Equal(t, "You write slogans.", got.Messages[0].Content)
}

func TestGroq_Errors(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		_, err := NewGroqBackend(GroqConfig{}).Complete(context.Background(), "p", Options{})
		assert.Equal(t, schema.ErrCodeConfiguration, schema.CodeOf(err))
	})

	t.Run("non-2xx carries body", func(t *testing.T) {
		srv := groqServer(t, http.StatusUnauthorized,
			`{"error":{"message":"Invalid API Key","type":"invalid_request_error"}}`, nil)

		_, err := NewGroqBackend(GroqConfig{APIKey: "bad", BaseURL: srv.URL}).Complete(context.Background(), "p", Options{})
		require.Error(t, err)

		var se *schema.Error
		require.ErrorAs(t, err, &se)
		assert.Equal(t, schema.ErrCodeBackend, se.Code)
		assert.Contains(t, se.Message, "Invalid API Key")
		assert.Equal(t, http.StatusUnauthorized, se.Details["status"])
	})

	t.Run("empty content", func(t *testing.T) {
		srv := groqServer(t, http.StatusOK, chatCompletion("   "), nil)

		_, err := NewGroqBackend(GroqConfig{APIKey: "k", BaseURL: srv.URL}).Complete(context.Background(), "p", Options{})
		assert.Equal(t, schema.ErrCodeEmptyCompletion, schema.CodeOf(err))
	})
}
