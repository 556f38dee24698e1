// Package workflows is the application service behind the HTTP and MCP
// surfaces: workflow CRUD with ownership rules, runs and run history.
package workflows

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/Jinrix-labs/prompt-forge-sub000/internal/engine"
	"github.com/Jinrix-labs/prompt-forge-sub000/internal/logging"
	"github.com/Jinrix-labs/prompt-forge-sub000/internal/quota"
	"github.com/Jinrix-labs/prompt-forge-sub000/internal/store"
	"github.com/Jinrix-labs/prompt-forge-sub000/internal/validation"
	"github.com/Jinrix-labs/prompt-forge-sub000/pkg/schema"
)

// NewWorkflow is the payload for creating a workflow.
type NewWorkflow struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsPublic    bool   `json:"isPublic"`
	schema.WorkflowDefinition
}

// Deps holds the service's collaborators.
type Deps struct {
	Store       store.Store
	Interpreter *engine.Interpreter
	Validator   validation.Validator
	Gate        quota.Gate // nil = quota.AllowAll
	Logger      *slog.Logger
}

// Service enforces visibility and ownership on top of the store and runs
// workflows through the quota gate and interpreter.
type Service struct {
	store     store.Store
	interp    *engine.Interpreter
	validator validation.Validator
	gate      quota.Gate
	logger    *slog.Logger
}

// NewService creates a Service.
func NewService(d Deps) *Service {
	gate := d.Gate
	if gate == nil {
		gate = quota.AllowAll{}
	}
	return &Service{
		store:     d.Store,
		interp:    d.Interpreter,
		validator: d.Validator,
		gate:      gate,
		logger:    logging.OrDefault(d.Logger),
	}
}

// Create stores a new workflow owned by userID.
func (s *Service) Create(ctx context.Context, userID string, in NewWorkflow) (*store.Workflow, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow name is required")
	}
	if err := s.validator.ValidateDefinition(&in.WorkflowDefinition); err != nil {
		return nil, err
	}

	wf := &store.Workflow{
		ID:                 uuid.New().String(),
		OwnerID:            userID,
		Name:               name,
		Description:        in.Description,
		IsPublic:           in.IsPublic,
		WorkflowDefinition: in.WorkflowDefinition,
	}
	if err := s.store.CreateWorkflow(ctx, wf); err != nil {
		return nil, err
	}
	s.logger.InfoContext(logging.WithUserID(ctx, userID), "workflow created",
		slog.String("workflow_id", wf.ID), slog.Int("steps", len(wf.Steps)))
	return wf, nil
}

// Get returns a workflow the caller owns or that is public. Private
// workflows of other users are reported as not found.
func (s *Service) Get(ctx context.Context, userID, id string) (*store.Workflow, error) {
	wf, err := s.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if !wf.ReadableBy(userID) {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not found", id)
	}
	return wf, nil
}

// owned loads a workflow for mutation by its owner.
func (s *Service) owned(ctx context.Context, userID, id string) (*store.Workflow, error) {
	wf, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if wf.OwnerID != userID {
		return nil, schema.NewErrorf(schema.ErrCodeForbidden, "workflow %q can only be modified by its owner", id)
	}
	return wf, nil
}

// Update applies a partial update. Only the owner may update.
func (s *Service) Update(ctx context.Context, userID, id string, update store.WorkflowUpdate) (*store.Workflow, error) {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return nil, err
	}
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "workflow name cannot be empty")
		}
		update.Name = &name
	}
	if update.Definition != nil {
		if err := s.validator.ValidateDefinition(update.Definition); err != nil {
			return nil, err
		}
	}
	if err := s.store.UpdateWorkflow(ctx, id, update); err != nil {
		return nil, err
	}
	return s.store.GetWorkflow(ctx, id)
}

// Delete removes a workflow and its execution history. Only the owner may delete.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	return s.store.DeleteWorkflow(ctx, id)
}

// Clone copies a readable workflow into a new private workflow owned by userID.
func (s *Service) Clone(ctx context.Context, userID, id string) (*store.Workflow, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	src, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	wf := &store.Workflow{
		ID:                 uuid.New().String(),
		OwnerID:            userID,
		Name:               src.Name + " (copy)",
		Description:        src.Description,
		WorkflowDefinition: src.WorkflowDefinition.Clone(),
	}
	if err := s.store.CreateWorkflow(ctx, wf); err != nil {
		return nil, err
	}
	return wf, nil
}

// List returns the caller's workflows plus every public workflow, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]*store.Workflow, error) {
	return s.store.ListWorkflows(ctx, store.WorkflowFilter{OwnerID: userID, IncludePublic: true})
}

// Execute runs a workflow for userID. Usage is recorded as soon as the run
// starts, whatever its outcome.
func (s *Service) Execute(ctx context.Context, userID, workflowID string, inputs map[string]any) (*engine.ExecutionResult, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	wf, err := s.Get(ctx, userID, workflowID)
	if err != nil {
		return nil, err
	}
	if inputs == nil {
		inputs = map[string]any{}
	}
	if err := s.validator.ValidateRequiredInputs(wf.RequiredInputs, inputs); err != nil {
		return nil, err
	}

	decision, err := s.gate.Check(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := decision.Err(); err != nil {
		return nil, err
	}

	return s.interp.Run(ctx, engine.RunRequest{
		Workflow: wf,
		UserID:   userID,
		Inputs:   inputs,
		OnStart: func(ctx context.Context, exec *store.Execution) {
			if err := s.gate.RecordUsage(ctx, userID, decision); err != nil {
				s.logger.WarnContext(ctx, "record usage", slog.String("error", err.Error()))
			}
		},
	})
}

// History lists the caller's runs of a workflow, newest first.
func (s *Service) History(ctx context.Context, userID, workflowID string, limit int) ([]*store.Execution, error) {
	if _, err := s.Get(ctx, userID, workflowID); err != nil {
		return nil, err
	}
	return s.store.ListExecutions(ctx, store.ExecutionFilter{
		WorkflowID: workflowID,
		UserID:     userID,
		Limit:      store.ClampLimit(limit),
	})
}

// GetExecution returns one of the caller's own execution records.
func (s *Service) GetExecution(ctx context.Context, userID, id string) (*store.Execution, error) {
	exec, err := s.store.GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	if exec.UserID != userID {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "execution %q not found", id)
	}
	return exec, nil
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return schema.NewError(schema.ErrCodeForbidden, "a user identity is required")
	}
	return nil
}
