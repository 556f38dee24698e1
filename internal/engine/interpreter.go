// Package engine runs workflow definitions step by step and records each run.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Jinrix-labs/prompt-forge-sub000/internal/expressions"
	"github.com/Jinrix-labs/prompt-forge-sub000/internal/logging"
	"github.com/Jinrix-labs/prompt-forge-sub000/internal/steps"
	"github.com/Jinrix-labs/prompt-forge-sub000/internal/store"
	"github.com/Jinrix-labs/prompt-forge-sub000/pkg/schema"
)

// RunRequest describes one invocation of a stored workflow.
type RunRequest struct {
	Workflow *store.Workflow
	UserID   string
	Inputs   map[string]any
	// OnStart fires once the execution record exists, before the first step.
	OnStart func(ctx context.Context, exec *store.Execution)
}

// ExecutionResult is the outcome handed back to callers.
type ExecutionResult struct {
	ExecutionID string              `json:"executionId"`
	Success     bool                `json:"success"`
	Output      any                 `json:"output,omitempty"`
	StepResults []schema.StepResult `json:"stepResults"`
	TokensUsed  int                 `json:"tokensUsed"`
	Error       string              `json:"error,omitempty"`
}

// Config holds the interpreter's dependencies.
type Config struct {
	Store    store.Store
	Registry *steps.Registry
	Resolver *expressions.Resolver // nil = default strategies
	Logger   *slog.Logger
}

// Interpreter executes workflow steps strictly in order and halts on the
// first failing step. Runs are independent: each owns its scope and trace.
type Interpreter struct {
	registry *steps.Registry
	resolver *expressions.Resolver
	recorder *Recorder
	logger   *slog.Logger
}

// NewInterpreter creates an Interpreter from cfg.
func NewInterpreter(cfg Config) *Interpreter {
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = expressions.NewResolver()
	}
	return &Interpreter{
		registry: cfg.Registry,
		resolver: resolver,
		recorder: NewRecorder(cfg.Store),
		logger:   logging.OrDefault(cfg.Logger),
	}
}

// Run executes req.Workflow against req.Inputs. Step failures are reported
// through ExecutionResult.Success; the error return is reserved for failures
// to persist the execution record.
func (in *Interpreter) Run(ctx context.Context, req RunRequest) (*ExecutionResult, error) {
	if req.Workflow == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow is required")
	}
	// Snapshot: edits made while the run is in flight must not affect it.
	def := req.Workflow.WorkflowDefinition.Clone()

	exec, err := in.recorder.Start(ctx, req.Workflow.ID, req.UserID, req.Inputs)
	if err != nil {
		return nil, err
	}

	ctx = logging.WithWorkflowID(ctx, req.Workflow.ID)
	ctx = logging.WithExecutionID(ctx, exec.ID)
	ctx = logging.WithUserID(ctx, req.UserID)
	in.logger.InfoContext(ctx, "execution started", slog.Int("steps", len(def.Steps)))

	if req.OnStart != nil {
		req.OnStart(ctx, exec)
	}

	scope := expressions.NewScope(req.Inputs)
	result := &ExecutionResult{ExecutionID: exec.ID}
	var output any

	for i := range def.Steps {
		step := &def.Steps[i]
		stepCtx := logging.WithStepID(ctx, step.ID)

		started := time.Now()
		res, runErr := in.runStep(stepCtx, step, scope)
		entry := schema.StepResult{
			StepID:     step.ID,
			StepName:   step.DisplayName(),
			StepType:   step.Type,
			DurationMs: time.Since(started).Milliseconds(),
		}

		if runErr != nil {
			entry.Error = runErr.Error()
			in.logger.WarnContext(stepCtx, "step failed", slog.String("type", string(step.Type)), slog.String("error", entry.Error))
			in.appendStep(stepCtx, exec, entry)

			msg := fmt.Sprintf("step %q (%s) failed: %s", step.DisplayName(), step.ID, entry.Error)
			result.Error = msg
			result.StepResults = exec.StepResults
			result.TokensUsed = exec.TokensUsed
			if err := in.recorder.Fail(ctx, exec, msg); err != nil {
				return result, err
			}
			in.logger.InfoContext(ctx, "execution failed", slog.Int("completed_steps", i))
			return result, nil
		}

		entry.Success = true
		entry.Output = res.Output
		entry.TokensUsed = res.TokensUsed
		scope.Publish(step, res.Output)
		output = res.Output

		in.logger.DebugContext(stepCtx, "step completed",
			slog.String("type", string(step.Type)),
			slog.Int("tokens", res.TokensUsed),
			slog.Int64("duration_ms", entry.DurationMs))
		in.appendStep(stepCtx, exec, entry)
	}

	result.Success = true
	result.Output = output
	result.StepResults = exec.StepResults
	result.TokensUsed = exec.TokensUsed
	if err := in.recorder.Complete(ctx, exec, output); err != nil {
		return result, err
	}
	in.logger.InfoContext(ctx, "execution completed", slog.Int("tokens", exec.TokensUsed))
	return result, nil
}

func (in *Interpreter) runStep(ctx context.Context, step *schema.StepSpec, scope expressions.Scope) (*steps.Result, error) {
	executor, err := in.registry.Get(step.Type)
	if err != nil {
		return nil, err
	}
	res, err := executor.Execute(ctx, steps.Request{
		Step:   step,
		Inputs: steps.ResolveInputs(in.resolver, step.Inputs, scope),
		Scope:  scope,
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &steps.Result{}
	}
	return res, nil
}

// appendStep persists the growing trace. A write failure is logged: the
// in-memory trace stays authoritative and is written again on finalize.
func (in *Interpreter) appendStep(ctx context.Context, exec *store.Execution, entry schema.StepResult) {
	if err := in.recorder.AppendStep(ctx, exec, entry); err != nil {
		in.logger.WarnContext(ctx, "persist step result", slog.String("error", err.Error()))
	}
}
