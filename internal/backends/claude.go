package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Jinrix-labs/prompt-forge-sub000/pkg/schema"
)

const (
	defaultClaudeBaseURL   = "https://api.anthropic.com"
	defaultClaudeModel     = "claude-3-5-sonnet-20241022"
	defaultClaudeVersion   = "2023-06-01"
	defaultMaxTokens       = 1024
	defaultTimeout         = 60 * time.Second
	defaultMaxResponseBody = 4 * 1024 * 1024
)

// ClaudeConfig configures the Anthropic Messages API adapter.
type ClaudeConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Version    string
	MaxTokens  int
	Timeout    time.Duration
	HTTPClient *http.Client
}

// ClaudeBackend calls the Anthropic Messages API.
type ClaudeBackend struct {
	cfg    ClaudeConfig
	client *http.Client
}

// NewClaudeBackend creates a Claude adapter. A missing API key is reported
// per call, not here.
func NewClaudeBackend(cfg ClaudeConfig) *ClaudeBackend {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultClaudeBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = defaultClaudeModel
	}
	if cfg.Version == "" {
		cfg.Version = defaultClaudeVersion
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &ClaudeBackend{cfg: cfg, client: client}
}

func (b *ClaudeBackend) Name() string { return schema.ModelClaude }

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete sends prompt as a single user message. MaxTokens and Temperature
// overrides are not applied to this backend.
func (b *ClaudeBackend) Complete(ctx context.Context, prompt string, opts Options) (*Completion, error) {
	if b.cfg.APIKey == "" {
		return nil, missingKey(b.Name(), "ANTHROPIC_API_KEY")
	}

	model := b.cfg.Model
	if opts.ModelName != "" {
		model = opts.ModelName
	}

	payload, err := json.Marshal(claudeRequest{
		Model:     model,
		MaxTokens: b.cfg.MaxTokens,
		Messages:  []claudeMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "claude: failed to marshal request").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "claude: failed to create request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", b.cfg.APIKey)
	req.Header.Set("anthropic-version", b.cfg.Version)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeBackend, "claude: request failed: %s", err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxResponseBody))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeBackend, "claude: failed to read response: %s", err.Error()).WithCause(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, backendError(b.Name(), resp.StatusCode, string(body))
	}

	var out claudeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeBackend, "claude: malformed response: %s", err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"backend": b.Name(), "body": string(body)})
	}

	var text string
	for _, block := range out.Content {
		if block.Type == "text" {
			text = strings.TrimSpace(block.Text)
			break
		}
	}
	if text == "" {
		return nil, emptyCompletion(b.Name())
	}

	return &Completion{
		Text:       text,
		TokensUsed: out.Usage.InputTokens + out.Usage.OutputTokens,
	}, nil
}

var _ Backend = (*ClaudeBackend)(nil)
