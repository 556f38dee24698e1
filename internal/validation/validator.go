// Package validation checks workflow definitions before they are stored and
// caller inputs before a run starts.
package validation

import "github.com/Jinrix-labs/prompt-forge-sub000/pkg/schema"

// Validator checks workflow definitions and run inputs.
// Uses JSON Schema Draft 2020-12 for structural checks.
type Validator interface {
	ValidateDefinition(def *schema.WorkflowDefinition) error
	ValidateInput(input map[string]any, inputSchema []byte) error
	ValidateRequiredInputs(required []string, input map[string]any) error
}

// StepLookup reports whether a step type has a registered executor.
// Satisfied by *steps.Registry.
type StepLookup interface {
	Has(t schema.StepType) bool
}
