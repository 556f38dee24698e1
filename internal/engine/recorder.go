package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Jinrix-labs/prompt-forge-sub000/internal/store"
	"github.com/Jinrix-labs/prompt-forge-sub000/pkg/schema"
)

// Recorder persists the lifecycle of one execution record.
// Each *store.Execution it returns is owned by a single run.
type Recorder struct {
	store store.Store
	now   func() time.Time
}

// NewRecorder creates a Recorder over s.
func NewRecorder(s store.Store) *Recorder {
	return &Recorder{store: s, now: func() time.Time { return time.Now().UTC() }}
}

// Start creates the execution record in the running state.
func (r *Recorder) Start(ctx context.Context, workflowID, userID string, inputs map[string]any) (*store.Execution, error) {
	exec := &store.Execution{
		ID:          uuid.New().String(),
		WorkflowID:  workflowID,
		UserID:      userID,
		Status:      schema.ExecutionRunning,
		InputData:   inputs,
		StepResults: []schema.StepResult{},
		StartedAt:   r.now(),
	}
	if err := r.store.CreateExecution(ctx, exec); err != nil {
		return nil, err
	}
	return exec, nil
}

// AppendStep adds a trace entry and persists the trace so far.
func (r *Recorder) AppendStep(ctx context.Context, exec *store.Execution, res schema.StepResult) error {
	exec.StepResults = append(exec.StepResults, res)
	exec.TokensUsed += res.TokensUsed
	tokens := exec.TokensUsed
	return r.store.UpdateExecution(ctx, exec.ID, store.ExecutionUpdate{
		StepResults: exec.StepResults,
		TokensUsed:  &tokens,
	})
}

// Complete finalizes the execution as completed with the given output.
func (r *Recorder) Complete(ctx context.Context, exec *store.Execution, output any) error {
	data, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	return r.finalize(ctx, exec, schema.ExecutionCompleted, func(u *store.ExecutionUpdate) {
		u.OutputData = data
		exec.OutputData = data
	})
}

// Fail finalizes the execution as failed with msg.
func (r *Recorder) Fail(ctx context.Context, exec *store.Execution, msg string) error {
	return r.finalize(ctx, exec, schema.ExecutionFailed, func(u *store.ExecutionUpdate) {
		u.ErrorMessage = &msg
		exec.ErrorMessage = msg
	})
}

func (r *Recorder) finalize(ctx context.Context, exec *store.Execution, to schema.ExecutionStatus, apply func(*store.ExecutionUpdate)) error {
	if err := ValidateTransition(exec.ID, exec.Status, to); err != nil {
		return err
	}
	now := r.now()
	tokens := exec.TokensUsed
	update := store.ExecutionUpdate{
		Status:      &to,
		StepResults: exec.StepResults,
		TokensUsed:  &tokens,
		CompletedAt: &now,
	}
	apply(&update)

	exec.Status = to
	exec.CompletedAt = &now
	return r.store.UpdateExecution(ctx, exec.ID, update)
}
