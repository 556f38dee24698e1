package backends

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	einoschema "github.com/cloudwego/eino/schema"

	"github.com/Jinrix-labs/prompt-forge-sub000/pkg/schema"
)

const (
	defaultGroqBaseURL      = "https://api.groq.com/openai/v1"
	defaultGroqModel        = "llama-3.3-70b-versatile"
	defaultGroqTemperature  = 0.7
	defaultGroqSystemPrompt = "You are a helpful assistant."
)

// GroqConfig configures the OpenAI-compatible Groq adapter.
type GroqConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	// Transport is the underlying round tripper; nil uses http.DefaultTransport.
	Transport http.RoundTripper
}

// GroqBackend calls an OpenAI-style chat completion endpoint through eino.
type GroqBackend struct {
	cfg GroqConfig
}

// NewGroqBackend creates a Groq adapter.
func NewGroqBackend(cfg GroqConfig) *GroqBackend {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGroqBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultGroqModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaultGroqTemperature
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport
	}
	return &GroqBackend{cfg: cfg}
}

func (b *GroqBackend) Name() string { return schema.ModelGroq }

// Complete sends an optional system prompt plus the user prompt. The provider
// does not report usage reliably here, so TokensUsed is always 0.
func (b *GroqBackend) Complete(ctx context.Context, prompt string, opts Options) (*Completion, error) {
	if b.cfg.APIKey == "" {
		return nil, missingKey(b.Name(), "GROQ_API_KEY")
	}

	model := b.cfg.Model
	if opts.ModelName != "" {
		model = opts.ModelName
	}
	maxTokens := b.cfg.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	temperature := float32(b.cfg.Temperature)
	if opts.Temperature != nil {
		temperature = float32(*opts.Temperature)
	}
	system := opts.SystemPrompt
	if system == "" {
		system = defaultGroqSystemPrompt
	}

	capture := &errorCapture{base: b.cfg.Transport}
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      b.cfg.APIKey,
		BaseURL:     b.cfg.BaseURL,
		Model:       model,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
		HTTPClient:  &http.Client{Transport: capture, Timeout: b.cfg.Timeout},
	})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfiguration, "groq: failed to create chat model: %s", err.Error()).WithCause(err)
	}

	resp, err := chatModel.Generate(ctx, []*einoschema.Message{
		einoschema.SystemMessage(system),
		einoschema.UserMessage(prompt),
	})
	if err != nil {
		if status, body, ok := capture.failure(); ok {
			return nil, backendError(b.Name(), status, body).WithCause(err)
		}
		return nil, schema.NewErrorf(schema.ErrCodeBackend, "groq: request failed: %s", err.Error()).WithCause(err)
	}
	if resp == nil {
		return nil, emptyCompletion(b.Name())
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return nil, emptyCompletion(b.Name())
	}
	return &Completion{Text: text, TokensUsed: 0}, nil
}

// errorCapture records the body of a non-2xx response so the raw upstream
// error reaches the caller. The body is replayed for the client library.
type errorCapture struct {
	base http.RoundTripper

	mu     sync.Mutex
	status int
	body   string
}

func (c *errorCapture) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := c.base.RoundTrip(req)
	if err != nil || resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return resp, err
	}

	data, readErr := io.ReadAll(io.LimitReader(resp.Body, defaultMaxResponseBody))
	resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))

	c.mu.Lock()
	c.status = resp.StatusCode
	c.body = string(data)
	c.mu.Unlock()
	return resp, nil
}

func (c *errorCapture) failure() (int, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, c.body, c.status != 0
}

var _ Backend = (*GroqBackend)(nil)
