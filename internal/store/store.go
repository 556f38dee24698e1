package store

import (
	"context"
	"time"
)

// MaxListLimit caps execution history listings.
const MaxListLimit = 50

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Workflows
	CreateWorkflow(ctx context.Context, wf *Workflow) error
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)
	UpdateWorkflow(ctx context.Context, id string, update WorkflowUpdate) error
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error

	// Executions
	CreateExecution(ctx context.Context, exec *Execution) error
	GetExecution(ctx context.Context, id string) (*Execution, error)
	UpdateExecution(ctx context.Context, id string, update ExecutionUpdate) error
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error)
	DeleteExecutionsBefore(ctx context.Context, before time.Time) (int64, error)

	// Usage
	GetUsage(ctx context.Context, userID, period string) (*Usage, error)
	IncrementUsage(ctx context.Context, userID, period string, metering Metering) error
	AddCredits(ctx context.Context, userID string, credits int) error

	// Maintenance
	Migrate(ctx context.Context) error

	// Lifecycle
	Close() error
}
