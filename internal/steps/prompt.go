package steps

import (
	"context"

	"github.com/Jinrix-labs/prompt-forge-sub000/internal/backends"
	"github.com/Jinrix-labs/prompt-forge-sub000/internal/expressions"
	"github.com/Jinrix-labs/prompt-forge-sub000/pkg/schema"
)

// PromptGenerationExecutor builds a prompt, calls a generation backend and
// enforces the configured length limits on the completion.
type PromptGenerationExecutor struct {
	backends *backends.Set
}

// NewPromptGenerationExecutor creates a prompt_generation executor.
func NewPromptGenerationExecutor(set *backends.Set) *PromptGenerationExecutor {
	return &PromptGenerationExecutor{backends: set}
}

func (e *PromptGenerationExecutor) Type() schema.StepType { return schema.StepTypePromptGeneration }

func (e *PromptGenerationExecutor) Description() string {
	return "Render a prompt template and generate text with Claude or Groq."
}

func (e *PromptGenerationExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	cfg, err := schema.DecodeConfig[schema.PromptGenerationConfig](req.Step.Config)
	if err != nil {
		return nil, err
	}

	prompt := BuildPrompt(cfg, req)
	if prompt == "" {
		return nil, schema.NewError(schema.ErrCodeValidation,
			"prompt_generation: no promptTemplate and no prompt or userInput input")
	}

	backend, err := e.backends.Select(cfg.BackendModel())
	if err != nil {
		return nil, err
	}

	completion, err := backend.Complete(ctx, prompt, backends.Options{
		ModelName:    cfg.ModelName,
		SystemPrompt: cfg.SystemPrompt,
		MaxTokens:    cfg.MaxTokens,
		Temperature:  cfg.Temperature,
	})
	if err != nil {
		return nil, err
	}

	text := EnforceMaxCharacters(completion.Text, cfg.MaxCharacters)
	text = EnforceMaxWords(text, cfg.MaxWords)
	return &Result{Output: text, TokensUsed: completion.TokensUsed}, nil
}

// BuildPrompt renders the prompt sent to the backend. Declared inputs are
// substituted first, then every string-valued context entry, so earlier step
// outputs can be referenced inline without being declared.
func BuildPrompt(cfg schema.PromptGenerationConfig, req Request) string {
	template := cfg.PromptTemplate
	if template == "" {
		if v, ok := req.Lookup("prompt"); ok && v != "" {
			template = v
		} else if v, ok := req.Lookup("userInput"); ok {
			template = v
		}
	}
	if template == "" {
		return ""
	}

	vars := make(map[string]string, len(req.Inputs))
	for _, in := range req.Inputs {
		vars[in.Name] = in.Value
	}
	prompt := expressions.Substitute(template, vars)
	prompt = expressions.Substitute(prompt, req.Scope.Strings())

	return prompt + limitInstructions(cfg.MaxCharacters, cfg.MaxWords)
}

var _ Executor = (*PromptGenerationExecutor)(nil)
