// Package backends adapts external text-generation providers to one
// completion contract.
package backends

import (
	"context"
	"sort"

	"github.com/Jinrix-labs/prompt-forge-sub000/pkg/schema"
)

// Options carries per-call overrides from a prompt_generation step.
type Options struct {
	ModelName    string
	SystemPrompt string
	MaxTokens    int
	Temperature  *float64
}

// Completion is the normalized backend response.
type Completion struct {
	Text       string
	TokensUsed int
}

// Backend is a text-generation provider. Implementations do not retry,
// cache, or rate-limit.
type Backend interface {
	Name() string
	Complete(ctx context.Context, prompt string, opts Options) (*Completion, error)
}

// Set selects a backend by the step's model name.
type Set struct {
	backends map[string]Backend
	fallback string
}

// NewSet creates a Set. The claude backend is the default selection.
func NewSet(backends ...Backend) *Set {
	s := &Set{backends: make(map[string]Backend, len(backends)), fallback: schema.ModelClaude}
	for _, b := range backends {
		s.backends[b.Name()] = b
	}
	return s
}

// Select returns the backend registered under model ("" means the default).
func (s *Set) Select(model string) (Backend, error) {
	if model == "" {
		model = s.fallback
	}
	b, ok := s.backends[model]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeConfiguration, "no generation backend for model %q", model).
			WithDetails(map[string]any{"model": model, "available": s.Names()})
	}
	return b, nil
}

// Names returns the registered backend names, sorted.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.backends))
	for name := range s.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func backendError(backend string, status int, body string) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeBackend, "%s API error (status %d): %s", backend, status, body).
		WithDetails(map[string]any{"backend": backend, "status": status, "body": body})
}

func missingKey(backend, env string) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeConfiguration, "%s API key is not configured (set %s)", backend, env).
		WithDetails(map[string]any{"backend": backend})
}

func emptyCompletion(backend string) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeEmptyCompletion, "%s returned no text", backend).
		WithDetails(map[string]any{"backend": backend})
}
