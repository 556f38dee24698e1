package expressions

import (
	"encoding/json"
	"strings"

	"github.com/Jinrix-labs/prompt-forge-sub000/pkg/schema"
)

// UserInputKey holds the caller's raw input map in every scope.
const UserInputKey = "user_input"

// Scope is the run-scoped context that steps read from and publish into.
// Top-level variables (caller inputs, output keys, step names) and per-step
// outputs live in separate namespaces, so "stepId.outputKey" keeps resolving
// to that step's output whatever later steps publish at the top level.
// A Scope belongs to exactly one run and is only mutated between steps.
type Scope struct {
	vars  map[string]any
	steps map[string]map[string]any
}

// NewScope builds the initial context: the caller inputs under user_input,
// plus each input spread at the top level. Spread entries win on collision.
func NewScope(inputs map[string]any) Scope {
	in := deepCopyMap(inputs)
	if in == nil {
		in = map[string]any{}
	}
	vars := make(map[string]any, len(in)+1)
	vars[UserInputKey] = in
	for k, v := range in {
		vars[k] = v
	}
	return Scope{vars: vars, steps: map[string]map[string]any{}}
}

// Get returns the top-level variable key.
func (s Scope) Get(key string) (any, bool) {
	v, ok := s.vars[key]
	return v, ok
}

// StepOutput returns the output a step published under outputKey.
func (s Scope) StepOutput(stepID, outputKey string) (any, bool) {
	out, ok := s.steps[stepID][outputKey]
	return out, ok
}

// Publish folds a step's output into the scope under its lookup keys:
// the step namespace for "stepId.outputKey" paths, then the top-level
// outputKey, then the step name when it is set.
func (s *Scope) Publish(step *schema.StepSpec, output any) {
	if s.vars == nil {
		s.vars = map[string]any{}
	}
	if s.steps == nil {
		s.steps = map[string]map[string]any{}
	}
	key := step.PublishKey()
	s.steps[step.ID] = map[string]any{key: output}
	s.vars[key] = output
	if step.Name != "" {
		s.vars[step.Name] = output
	}
}

// Lookup follows a dotted path. When the first segment names a published
// step that has the second segment as its output key, the path continues
// inside that output; otherwise it walks the top-level variables.
// ok is false when a segment is missing or null.
func (s Scope) Lookup(path string) (any, bool) {
	parts := strings.Split(path, ".")
	if len(parts) >= 2 {
		if out, ok := s.StepOutput(parts[0], parts[1]); ok {
			return walk(out, parts[2:])
		}
	}
	return walk(s.vars, parts)
}

// Strings returns the string-typed top-level variables.
func (s Scope) Strings() map[string]string {
	out := make(map[string]string, len(s.vars))
	for k, v := range s.vars {
		if str, ok := v.(string); ok {
			out[k] = str
		}
	}
	return out
}

// deepCopyMap creates a deep copy of a map[string]any.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = deepCopyAny(v)
	}
	return cp
}

// deepCopyAny recursively copies maps and slices; other values are returned as-is.
func deepCopyAny(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = deepCopyAny(item)
		}
		return cp
	case json.RawMessage:
		if val == nil {
			return nil
		}
		cp := make(json.RawMessage, len(val))
		copy(cp, val)
		return cp
	default:
		return v
	}
}
