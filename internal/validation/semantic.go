package validation

import (
	"fmt"
	"regexp"

	"github.com/Jinrix-labs/prompt-forge-sub000/internal/expressions"
	"github.com/Jinrix-labs/prompt-forge-sub000/pkg/schema"
)

// validateSemantic checks what JSON Schema cannot: unique step ids, known
// step types, decodable per-kind configs and compilable patterns.
// Template syntax inside prompts and source references is never checked.
func validateSemantic(def *schema.WorkflowDefinition, lookup StepLookup, jq *expressions.GoJQEngine) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	seen := make(map[string]int, len(def.Steps))
	publishers := make(map[string]string, len(def.Steps))
	for i := range def.Steps {
		step := &def.Steps[i]
		path := fmt.Sprintf("steps[%d]", i)

		if first, dup := seen[step.ID]; dup {
			result.AddError(path+".id", schema.ErrCodeValidation,
				fmt.Sprintf("duplicate step id %q (first used by steps[%d])", step.ID, first))
		} else {
			seen[step.ID] = i
		}

		key := step.PublishKey()
		if prev, ok := publishers[key]; ok && step.OutputKey != "" {
			result.AddWarning(path+".outputKey", schema.ErrCodeValidation,
				fmt.Sprintf("outputKey %q shadows the output of step %q; use %s.%s to reach the earlier value", key, prev, prev, key))
		}
		publishers[key] = step.ID

		validateStep(step, path, lookup, jq, result)
	}
	return result
}

func validateStep(step *schema.StepSpec, path string, lookup StepLookup, jq *expressions.GoJQEngine, result *schema.ValidationResult) {
	known := step.Type.Known()
	if lookup != nil {
		known = lookup.Has(step.Type)
	}
	if !known {
		result.AddError(path+".type", schema.ErrCodeUnknownStepType,
			fmt.Sprintf("unknown step type %q", step.Type))
		return
	}

	cfgPath := path + ".config"
	switch step.Type {
	case schema.StepTypePromptGeneration:
		cfg, err := schema.DecodeConfig[schema.PromptGenerationConfig](step.Config)
		if err != nil {
			result.AddError(cfgPath, schema.ErrCodeValidation, err.Error())
			return
		}
		switch cfg.BackendModel() {
		case schema.ModelClaude, schema.ModelGroq:
		default:
			result.AddError(cfgPath+".model", schema.ErrCodeValidation,
				fmt.Sprintf("model must be %q or %q, got %q", schema.ModelClaude, schema.ModelGroq, cfg.Model))
		}
		nonNegative(cfgPath+".maxCharacters", cfg.MaxCharacters, result)
		nonNegative(cfgPath+".maxWords", cfg.MaxWords, result)
		nonNegative(cfgPath+".maxTokens", cfg.MaxTokens, result)
		if cfg.Temperature != nil && (*cfg.Temperature < 0 || *cfg.Temperature > 2) {
			result.AddError(cfgPath+".temperature", schema.ErrCodeValidation, "temperature must be between 0 and 2")
		}
		if cfg.PromptTemplate == "" {
			if _, ok := step.Inputs.Get("prompt"); !ok {
				if _, ok := step.Inputs.Get("userInput"); !ok {
					result.AddWarning(path, schema.ErrCodeValidation,
						"no promptTemplate and no prompt/userInput input; the step will fail with an empty prompt")
				}
			}
		}

	case schema.StepTypeTextTransform:
		cfg, err := schema.DecodeConfig[schema.TextTransformConfig](step.Config)
		if err != nil {
			result.AddError(cfgPath, schema.ErrCodeValidation, err.Error())
			return
		}
		switch cfg.Operation {
		case "", schema.TransformUppercase, schema.TransformLowercase, schema.TransformTrim, schema.TransformCapitalize:
		case schema.TransformExtract:
			compiles(cfgPath+".pattern", cfg.Pattern, result)
		case schema.TransformReplace:
			compiles(cfgPath+".find", cfg.Find, result)
		case schema.TransformJQ:
			if cfg.Pattern == "" {
				result.AddError(cfgPath+".pattern", schema.ErrCodeValidation, "jq operation requires a pattern")
			} else if jq != nil {
				if err := jq.Compile(cfg.Pattern); err != nil {
					result.AddError(cfgPath+".pattern", schema.ErrCodeValidation, err.Error())
				}
			}
		default:
			result.AddError(cfgPath+".operation", schema.ErrCodeValidation,
				fmt.Sprintf("unknown operation %q, expected one of %v", cfg.Operation, schema.TransformOperations))
		}
		unary(step, path, result)

	case schema.StepTypeTextCombine:
		if _, err := schema.DecodeConfig[schema.TextCombineConfig](step.Config); err != nil {
			result.AddError(cfgPath, schema.ErrCodeValidation, err.Error())
			return
		}
		if len(step.Inputs) == 0 {
			result.AddWarning(path+".inputs", schema.ErrCodeValidation,
				"text_combine without inputs always produces an empty string")
		}

	case schema.StepTypeVariableExtract:
		cfg, err := schema.DecodeConfig[schema.VariableExtractConfig](step.Config)
		if err != nil {
			result.AddError(cfgPath, schema.ErrCodeValidation, err.Error())
			return
		}
		if len(cfg.Fields) == 0 {
			result.AddWarning(cfgPath+".fields", schema.ErrCodeValidation, "no fields to extract")
		}
		for field, pattern := range cfg.Patterns {
			compiles(fmt.Sprintf("%s.patterns.%s", cfgPath, field), pattern, result)
		}
		unary(step, path, result)
	}
}

// unary warns when a step that reads only its first input declares more.
func unary(step *schema.StepSpec, path string, result *schema.ValidationResult) {
	if len(step.Inputs) > 1 {
		result.AddWarning(path+".inputs", schema.ErrCodeValidation,
			fmt.Sprintf("%s reads only its first input (%q); %d others are ignored",
				step.Type, step.Inputs[0].Name, len(step.Inputs)-1))
	}
}

func nonNegative(path string, n int, result *schema.ValidationResult) {
	if n < 0 {
		result.AddError(path, schema.ErrCodeValidation, fmt.Sprintf("must be >= 0, got %d", n))
	}
}

func compiles(path, pattern string, result *schema.ValidationResult) {
	if pattern == "" {
		return
	}
	if _, err := regexp.Compile(pattern); err != nil {
		result.AddError(path, schema.ErrCodeValidation, fmt.Sprintf("invalid regular expression: %s", err.Error()))
	}
}
