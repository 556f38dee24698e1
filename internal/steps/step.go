// Package steps implements one executor per workflow step kind.
package steps

import (
	"context"

	"github.com/Jinrix-labs/prompt-forge-sub000/internal/expressions"
	"github.com/Jinrix-labs/prompt-forge-sub000/pkg/schema"
)

// Executor runs one kind of step.
type Executor interface {
	Type() schema.StepType
	Description() string
	Execute(ctx context.Context, req Request) (*Result, error)
}

// ResolvedInput is an input binding after source-reference resolution.
type ResolvedInput struct {
	Name  string
	Value string
}

// Request is the data an executor receives for one step.
type Request struct {
	Step   *schema.StepSpec
	Inputs []ResolvedInput
	// Scope is read-only for executors.
	Scope expressions.Scope
}

// First returns the first resolved input value, or "" when there are none.
func (r Request) First() string {
	if len(r.Inputs) == 0 {
		return ""
	}
	return r.Inputs[0].Value
}

// Lookup returns the resolved value of the named input.
func (r Request) Lookup(name string) (string, bool) {
	for _, in := range r.Inputs {
		if in.Name == name {
			return in.Value, true
		}
	}
	return "", false
}

// Result is an executor's output.
type Result struct {
	Output     any
	TokensUsed int
}

// ResolveInputs resolves every binding of in against scope, keeping order.
func ResolveInputs(r *expressions.Resolver, in schema.Inputs, scope expressions.Scope) []ResolvedInput {
	out := make([]ResolvedInput, 0, len(in))
	for _, b := range in {
		out = append(out, ResolvedInput{Name: b.Name, Value: r.Resolve(b.Source, scope)})
	}
	return out
}
