package engine

import (
	"github.com/Jinrix-labs/prompt-forge-sub000/pkg/schema"
)

// ValidExecutionTransitions defines the allowed state transitions for executions.
// Terminal states have no outgoing edges, so an execution is finalized once.
var ValidExecutionTransitions = map[schema.ExecutionStatus][]schema.ExecutionStatus{
	schema.ExecutionRunning:   {schema.ExecutionCompleted, schema.ExecutionFailed},
	schema.ExecutionCompleted: {},
	schema.ExecutionFailed:    {},
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to schema.ExecutionStatus) bool {
	for _, a := range ValidExecutionTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an INVALID_TRANSITION error when from -> to is
// not an allowed edge.
func ValidateTransition(executionID string, from, to schema.ExecutionStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	return schema.NewErrorf(schema.ErrCodeInvalidTransition,
		"invalid execution transition: %s -> %s", from, to).
		WithDetails(map[string]any{"execution_id": executionID, "from": string(from), "to": string(to)})
}
