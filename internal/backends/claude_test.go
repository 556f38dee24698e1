package backends

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jinrix-labs/prompt-forge-sub000/pkg/schema"
)

func claudeServer(t *testing.T, status int, body string, inspect func(*http.Request, claudeRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req claudeRequest
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

func TestClaude_Complete(t *testing.T) {
	var gotReq claudeRequest
	var gotHeaders http.Header
	var gotPath string
	srv := claudeServer(t, http.StatusOK,
		`{"content":[{"type":"tool_use","id":"x"},{"type":"text","text":"  Hello Ada  "}],"usage":{"input_tokens":12,"output_tokens":5}}`,
		func(r *http.Request, req claudeRequest) {
			gotReq = req
			gotHeaders = r.Header.Clone()
			gotPath = r.URL.Path
		})

	b := NewClaudeBackend(ClaudeConfig{APIKey: "sk-test", BaseURL: srv.URL + "/"})
	out, err := b.Complete(context.Background(), "Say hello to Ada", Options{})
	require.NoError(t, err)

	assert.Equal(t, "Hello Ada", out.Text)
	assert.Equal(t, 17, out.TokensUsed)

	assert.Equal(t, "/v1/messages", gotPath)
	assert.Equal(t, "sk-test", gotHeaders.Get("x-api-key"))
	assert.Equal(t, defaultClaudeVersion, gotHeaders.Get("anthropic-version"))
	assert.Equal(t, defaultClaudeModel, gotReq.Model)
	assert.Equal(t, defaultMaxTokens, gotReq.MaxTokens)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "user", gotReq.Messages[0].Role)
	assert.Equal(t, "Say hello to Ada", gotReq.Messages[0].Content)
}

func TestClaude_ModelOverrideOnly(t *testing.T) {
	var gotReq claudeRequest
	srv := claudeServer(t, http.StatusOK, `{"content":[{"type":"text","text":"ok"}]}`,
		func(_ *http.Request, req claudeRequest) { gotReq = req })

	temp := 1.5
	b := NewClaudeBackend(ClaudeConfig{APIKey: "k", BaseURL: srv.URL, MaxTokens: 300})
	_, err := b.Complete(context.Background(), "p", Options{ModelName: "claude-3-haiku", MaxTokens: 9, Temperature: &temp})
	require.NoError(t, err)

	assert.Equal(t, "claude-3-haiku", gotReq.Model)
	assert.Equal(t, 300, gotReq.MaxTokens)
}

func TestClaude_Errors(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		called := false
		srv := claudeServer(t, http.StatusOK, `{}`, func(*http.Request, claudeRequest) { called = true })

		_, err := NewClaudeBackend(ClaudeConfig{BaseURL: srv.URL}).Complete(context.Background(), "p", Options{})
		require.Error(t, err)
		assert.Equal(t, schema.ErrCodeConfiguration, schema.CodeOf(err))
		assert.False(t, called)
	})

	t.Run("non-2xx carries body", func(t *testing.T) {
		srv := claudeServer(t, http.StatusTooManyRequests, `{"error":{"type":"rate_limit_error"}}`, nil)

		_, err := NewClaudeBackend(ClaudeConfig{APIKey: "k", BaseURL: srv.URL}).Complete(context.Background(), "p", Options{})
		require.Error(t, err)

		var se *schema.Error
		require.ErrorAs(t, err, &se)
		assert.Equal(t, schema.ErrCodeBackend, se.Code)
		assert.Contains(t, se.Message, "rate_limit_error")
		assert.Equal(t, http.StatusTooManyRequests, se.Details["status"])
	})

	t.Run("no text block", func(t *testing.T) {
		srv := claudeServer(t, http.StatusOK, `{"content":[{"type":"text","text":"   "}]}`, nil)

		_, err := NewClaudeBackend(ClaudeConfig{APIKey: "k", BaseURL: srv.URL}).Complete(context.Background(), "p", Options{})
		assert.Equal(t, schema.ErrCodeEmptyCompletion, schema.CodeOf(err))
	})

	t.Run("malformed body", func(t *testing.T) {
		srv := claudeServer(t, http.StatusOK, `not json`, nil)

		_, err := NewClaudeBackend(ClaudeConfig{APIKey: "k", BaseURL: srv.URL}).Complete(context.Background(), "p", Options{})
		assert.Equal(t, schema.ErrCodeBackend, schema.CodeOf(err))
	})
}

func TestSet_Select(t *testing.T) {
	claude := NewClaudeBackend(ClaudeConfig{})
	groq := NewGroqBackend(GroqConfig{})
	set := NewSet(claude, groq)

	b, err := set.Select("")
	require.NoError(t, err)
	assert.Same(t, Backend(claude), b)

	b, err = set.Select("groq")
	require.NoError(t, err)
	assert.Same(t, Backend(groq), b)

	_, err = set.Select("gpt")
	assert.Equal(t, schema.ErrCodeConfiguration, schema.CodeOf(err))
	assert.Equal(t, []string{"claude", "groq"}, set.Names())
}
