package steps

import (
	"context"
	"regexp"
	"strings"

	"github.com/Jinrix-labs/prompt-forge-sub000/pkg/schema"
)

// VariableExtractExecutor pulls named fields out of its first input with
// regular expressions. It never calls a model.
type VariableExtractExecutor struct{}

// NewVariableExtractExecutor creates a variable_extract executor.
func NewVariableExtractExecutor() *VariableExtractExecutor { return &VariableExtractExecutor{} }

func (e *VariableExtractExecutor) Type() schema.StepType { return schema.StepTypeVariableExtract }

func (e *VariableExtractExecutor) Description() string {
	return `Extract "field: value" lines (or custom patterns) into an object.`
}

// Execute returns map[string]any keyed by field. A field whose pattern does
// not match maps to "".
func (e *VariableExtractExecutor) Execute(_ context.Context, req Request) (*Result, error) {
	cfg, err := schema.DecodeConfig[schema.VariableExtractConfig](req.Step.Config)
	if err != nil {
		return nil, err
	}
	text := req.First()

	out := make(map[string]any, len(cfg.Fields))
	for _, field := range cfg.Fields {
		re, err := fieldPattern(field, cfg.Patterns[field])
		if err != nil {
			return nil, err
		}
		value := ""
		if m := re.FindStringSubmatch(text); len(m) > 1 {
			value = strings.TrimSpace(m[1])
		}
		out[field] = value
	}
	return &Result{Output: out}, nil
}

// fieldPattern uses the custom pattern when given, else a case-insensitive
// "<field>: value" line match.
func fieldPattern(field, custom string) (*regexp.Regexp, error) {
	if custom != "" {
		return compilePattern(custom)
	}
	return compilePattern(`(?i)` + regexp.QuoteMeta(field) + `:\s*([^\n]+)`)
}

var _ Executor = (*VariableExtractExecutor)(nil)
