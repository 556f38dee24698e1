package steps

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Jinrix-labs/prompt-forge-sub000/internal/expressions"
	"github.com/Jinrix-labs/prompt-forge-sub000/pkg/schema"
)

const defaultExtractPattern = `\[([^\]]+)\]`

// TextTransformExecutor applies one string operation to its first input.
type TextTransformExecutor struct {
	jq *expressions.GoJQEngine
}

// NewTextTransformExecutor creates a text_transform executor.
func NewTextTransformExecutor(jq *expressions.GoJQEngine) *TextTransformExecutor {
	if jq == nil {
		jq = expressions.NewGoJQEngine()
	}
	return &TextTransformExecutor{jq: jq}
}

func (e *TextTransformExecutor) Type() schema.StepType { return schema.StepTypeTextTransform }

func (e *TextTransformExecutor) Description() string {
	return "Transform the first input: uppercase, lowercase, trim, capitalize, extract, replace or jq."
}

func (e *TextTransformExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	cfg, err := schema.DecodeConfig[schema.TextTransformConfig](req.Step.Config)
	if err != nil {
		return nil, err
	}
	text := req.First()

	var out string
	switch op := cfg.Operation; op {
	case schema.TransformUppercase:
		out = strings.ToUpper(text)
	case schema.TransformLowercase:
		out = strings.ToLower(text)
	case "", schema.TransformTrim:
		out = strings.TrimSpace(text)
	case schema.TransformCapitalize:
		out = capitalize(text)
	case schema.TransformExtract:
		out, err = extract(text, cfg.Pattern)
	case schema.TransformReplace:
		out, err = replace(text, cfg.Find, cfg.Replace)
	case schema.TransformJQ:
		out, err = e.applyJQ(ctx, text, cfg.Pattern)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "text_transform: unknown operation %q", op).
			WithDetails(map[string]any{"operations": schema.TransformOperations})
	}
	if err != nil {
		return nil, err
	}
	return &Result{Output: out}, nil
}

// capitalize upper-cases the first character and lower-cases the rest.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return strings.ToUpper(string(r)) + strings.ToLower(s[size:])
}

func extract(text, pattern string) (string, error) {
	if pattern == "" {
		pattern = defaultExtractPattern
	}
	re, err := compilePattern(pattern)
	if err != nil {
		return "", err
	}
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return text, nil
	}
	return m[1], nil
}

func replace(text, find, replacement string) (string, error) {
	if find == "" {
		return text, nil
	}
	re, err := compilePattern(find)
	if err != nil {
		return "", err
	}
	return re.ReplaceAllString(text, replacement), nil
}

func (e *TextTransformExecutor) applyJQ(ctx context.Context, text, program string) (string, error) {
	var input any
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &input); err != nil {
		return "", schema.NewErrorf(schema.ErrCodeExecution, "text_transform: jq input is not JSON: %s", err.Error()).WithCause(err)
	}
	out, err := e.jq.EvaluateValue(ctx, program, input)
	if err != nil {
		return "", err
	}
	return expressions.Stringify(out), nil
}

// stripCodeFence removes a surrounding Markdown code fence, which models
// often wrap around JSON output.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid pattern %q: %s", pattern, err.Error()).WithCause(err)
	}
	return re, nil
}

var _ Executor = (*TextTransformExecutor)(nil)
