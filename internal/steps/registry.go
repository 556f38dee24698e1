package steps

import (
	"sort"
	"sync"

	"github.com/Jinrix-labs/prompt-forge-sub000/internal/backends"
	"github.com/Jinrix-labs/prompt-forge-sub000/internal/expressions"
	"github.com/Jinrix-labs/prompt-forge-sub000/pkg/schema"
)

// Info summarizes a registered executor.
type Info struct {
	Type        schema.StepType `json:"type"`
	Description string          `json:"description,omitempty"`
}

// Registry is a thread-safe lookup of executors by step type.
type Registry struct {
	mu        sync.RWMutex
	executors map[schema.StepType]Executor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[schema.StepType]Executor),
	}
}

// NewDefaultRegistry registers the four built-in step kinds.
func NewDefaultRegistry(set *backends.Set) *Registry {
	r := NewRegistry()
	for _, e := range []Executor{
		NewPromptGenerationExecutor(set),
		NewTextTransformExecutor(expressions.NewGoJQEngine()),
		NewTextCombineExecutor(),
		NewVariableExtractExecutor(),
	} {
		// Types are distinct, so registration cannot conflict.
		_ = r.Register(e)
	}
	return r
}

// Register adds an executor. Returns error on duplicate type.
func (r *Registry) Register(e Executor) error {
	if e == nil {
		return schema.NewError(schema.ErrCodeValidation, "executor is nil")
	}
	t := e.Type()
	if t == "" {
		return schema.NewError(schema.ErrCodeValidation, "executor type is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.executors[t]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "executor for %q already registered", t)
	}
	r.executors[t] = e
	return nil
}

// Get returns the executor for a step type.
func (r *Registry) Get(t schema.StepType) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.executors[t]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeUnknownStepType, "unknown step type %q", t)
	}
	return e, nil
}

// Has checks if a step type is registered.
func (r *Registry) Has(t schema.StepType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.executors[t]
	return ok
}

// List returns all registered executors sorted by type.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.executors))
	for _, e := range r.executors {
		infos = append(infos, Info{Type: e.Type(), Description: e.Description()})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Type < infos[j].Type
	})
	return infos
}
