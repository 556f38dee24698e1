package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// WorkflowDefinition is the executable part of an authored workflow.
// Step order is execution order.
type WorkflowDefinition struct {
	Steps          []StepSpec `json:"steps"`
	RequiredInputs []string   `json:"requiredInputs,omitempty"`
}

// Clone returns a deep copy so a running execution is unaffected by later edits.
func (d WorkflowDefinition) Clone() WorkflowDefinition {
	out := WorkflowDefinition{
		Steps:          make([]StepSpec, len(d.Steps)),
		RequiredInputs: append([]string(nil), d.RequiredInputs...),
	}
	for i := range d.Steps {
		out.Steps[i] = d.Steps[i].Clone()
	}
	return out
}

// StepSpec describes a single step in a workflow.
type StepSpec struct {
	ID        string          `json:"id"`
	Name      string          `json:"name,omitempty"`
	Type      StepType        `json:"type"`
	Config    json.RawMessage `json:"config,omitempty"`
	Inputs    Inputs          `json:"inputs,omitempty"`
	OutputKey string          `json:"outputKey,omitempty"`
}

// DefaultOutputKey is used when a step does not declare an outputKey.
const DefaultOutputKey = "output"

// DisplayName returns the step name, falling back to its ID.
func (s *StepSpec) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// PublishKey returns the context key the step output is published under.
func (s *StepSpec) PublishKey() string {
	if s.OutputKey != "" {
		return s.OutputKey
	}
	return DefaultOutputKey
}

// Clone returns a deep copy of the step.
func (s StepSpec) Clone() StepSpec {
	out := s
	if s.Config != nil {
		out.Config = append(json.RawMessage(nil), s.Config...)
	}
	if s.Inputs != nil {
		out.Inputs = append(Inputs(nil), s.Inputs...)
	}
	return out
}

// StepType enumerates the kinds of steps in a workflow.
type StepType string

const (
	StepTypePromptGeneration StepType = "prompt_generation"
	StepTypeTextTransform    StepType = "text_transform"
	StepTypeTextCombine      StepType = "text_combine"
	StepTypeVariableExtract  StepType = "variable_extract"
)

// StepTypes lists every step kind the engine implements.
var StepTypes = []StepType{
	StepTypePromptGeneration,
	StepTypeTextTransform,
	StepTypeTextCombine,
	StepTypeVariableExtract,
}

// Known reports whether the engine implements this step type.
func (t StepType) Known() bool {
	for _, k := range StepTypes {
		if k == t {
			return true
		}
	}
	return false
}

// InputBinding maps a local parameter name to a source reference.
type InputBinding struct {
	Name   string
	Source string
}

// Inputs is an ordered set of input bindings. It is encoded as a JSON object
// whose key order is preserved, since text_combine joins in declaration order
// and text_transform reads the first input.
type Inputs []InputBinding

// Get returns the source reference bound to name.
func (in Inputs) Get(name string) (string, bool) {
	for _, b := range in {
		if b.Name == name {
			return b.Source, true
		}
	}
	return "", false
}

// UnmarshalJSON decodes a JSON object, keeping key order.
// Non-string values are kept as their JSON text.
func (in *Inputs) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*in = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("inputs: expected JSON object, got %v", tok)
	}

	var out Inputs
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("inputs.%s: %w", key, err)
		}
		source := string(raw)
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			source = s
		} else if string(raw) == "null" {
			source = ""
		}

		replaced := false
		for i := range out {
			if out[i].Name == key {
				out[i].Source = source
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, InputBinding{Name: key, Source: source})
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*in = out
	return nil
}

// MarshalJSON encodes the bindings as a JSON object in declaration order.
func (in Inputs) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, b := range in {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(b.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(b.Source)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Generation backends selectable by a prompt_generation step.
const (
	ModelClaude = "claude"
	ModelGroq   = "groq"
)

// PromptGenerationConfig is the config block for prompt_generation steps.
type PromptGenerationConfig struct {
	PromptTemplate string   `json:"promptTemplate,omitempty"`
	Model          string   `json:"model,omitempty"`     // claude | groq (default: claude)
	ModelName      string   `json:"modelName,omitempty"` // provider model override
	SystemPrompt   string   `json:"systemPrompt,omitempty"`
	MaxCharacters  int      `json:"maxCharacters,omitempty"`
	MaxWords       int      `json:"maxWords,omitempty"`
	MaxTokens      int      `json:"maxTokens,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
}

// BackendModel returns the selected backend, defaulting to claude.
func (c PromptGenerationConfig) BackendModel() string {
	if c.Model == "" {
		return ModelClaude
	}
	return c.Model
}

// Text transform operations.
const (
	TransformUppercase  = "uppercase"
	TransformLowercase  = "lowercase"
	TransformTrim       = "trim"
	TransformCapitalize = "capitalize"
	TransformExtract    = "extract"
	TransformReplace    = "replace"
	TransformJQ         = "jq"
)

// TransformOperations lists the supported text_transform operations.
var TransformOperations = []string{
	TransformUppercase, TransformLowercase, TransformTrim, TransformCapitalize,
	TransformExtract, TransformReplace, TransformJQ,
}

// TextTransformConfig is the config block for text_transform steps.
type TextTransformConfig struct {
	Operation string `json:"operation,omitempty"` // default: trim
	Pattern   string `json:"pattern,omitempty"`   // extract regex, or jq program for jq
	Find      string `json:"find,omitempty"`
	Replace   string `json:"replace,omitempty"`
}

// TextCombineConfig is the config block for text_combine steps.
type TextCombineConfig struct {
	Separator *string `json:"separator,omitempty"` // default: "\n\n"
}

// VariableExtractConfig is the config block for variable_extract steps.
type VariableExtractConfig struct {
	Fields   []string          `json:"fields"`
	Patterns map[string]string `json:"patterns,omitempty"`
}

// DecodeConfig decodes a step's raw config into its typed form.
// An absent config yields the zero value.
func DecodeConfig[T any](raw json.RawMessage) (T, error) {
	var cfg T
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, NewErrorf(ErrCodeValidation, "invalid step config: %s", err.Error()).WithCause(err)
	}
	return cfg, nil
}

// StepResult is one entry of an execution trace.
type StepResult struct {
	StepID     string   `json:"stepId"`
	StepName   string   `json:"stepName"`
	StepType   StepType `json:"stepType"`
	Output     any      `json:"output,omitempty"`
	TokensUsed int      `json:"tokensUsed"`
	Success    bool     `json:"success"`
	Error      string   `json:"error,omitempty"`
	DurationMs int64    `json:"durationMs"`
}
