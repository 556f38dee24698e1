package steps

import (
	"context"
	"strings"

	"github.com/Jinrix-labs/prompt-forge-sub000/pkg/schema"
)

const defaultSeparator = "\n\n"

// TextCombineExecutor joins all non-empty inputs in declaration order.
type TextCombineExecutor struct{}

// NewTextCombineExecutor creates a text_combine executor.
func NewTextCombineExecutor() *TextCombineExecutor { return &TextCombineExecutor{} }

func (e *TextCombineExecutor) Type() schema.StepType { return schema.StepTypeTextCombine }

func (e *TextCombineExecutor) Description() string {
	return "Join all inputs with a separator, skipping empty values."
}

func (e *TextCombineExecutor) Execute(_ context.Context, req Request) (*Result, error) {
	cfg, err := schema.DecodeConfig[schema.TextCombineConfig](req.Step.Config)
	if err != nil {
		return nil, err
	}
	sep := defaultSeparator
	if cfg.Separator != nil {
		sep = *cfg.Separator
	}

	parts := make([]string, 0, len(req.Inputs))
	for _, in := range req.Inputs {
		if in.Value != "" {
			parts = append(parts, in.Value)
		}
	}
	return &Result{Output: strings.Join(parts, sep)}, nil
}

var _ Executor = (*TextCombineExecutor)(nil)
