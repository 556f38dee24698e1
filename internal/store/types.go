package store

import (
	"encoding/json"
	"time"

	"github.com/Jinrix-labs/prompt-forge-sub000/pkg/schema"
)

// Workflow is an authored workflow definition with ownership metadata.
type Workflow struct {
	ID          string `json:"id"`
	OwnerID     string `json:"ownerId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsPublic    bool   `json:"isPublic"`
	schema.WorkflowDefinition
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ReadableBy reports whether userID may read or run the workflow.
func (w *Workflow) ReadableBy(userID string) bool {
	return w.IsPublic || w.OwnerID == userID
}

// Execution is the persisted record of one workflow run.
type Execution struct {
	ID           string                 `json:"id"`
	WorkflowID   string                 `json:"workflowId"`
	UserID       string                 `json:"userId"`
	Status       schema.ExecutionStatus `json:"status"`
	InputData    map[string]any         `json:"inputData"`
	StepResults  []schema.StepResult    `json:"stepResults"`
	OutputData   json.RawMessage        `json:"outputData,omitempty"`
	TokensUsed   int                    `json:"tokensUsed"`
	ErrorMessage string                 `json:"errorMessage,omitempty"`
	StartedAt    time.Time              `json:"startedAt"`
	CompletedAt  *time.Time             `json:"completedAt,omitempty"`
}

// Metering selects which allowance a run is charged against.
type Metering string

const (
	MeteringMonthly Metering = "monthly"
	MeteringCredits Metering = "credits"
)

// Usage is a user's metering state. MonthlyUsed counts runs in Period (YYYY-MM).
type Usage struct {
	UserID      string    `json:"userId"`
	Period      string    `json:"period"`
	MonthlyUsed int       `json:"monthlyUsed"`
	Credits     int       `json:"credits"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// --- Filter and update types ---

// WorkflowFilter specifies criteria for listing workflows.
// With OwnerID and IncludePublic both set, the owner's and all public
// workflows are returned.
type WorkflowFilter struct {
	OwnerID       string `json:"ownerId,omitempty"`
	IncludePublic bool   `json:"includePublic,omitempty"`
	Limit         int    `json:"limit,omitempty"`
	Offset        int    `json:"offset,omitempty"`
}

// WorkflowUpdate specifies mutable fields of a workflow.
type WorkflowUpdate struct {
	Name        *string                    `json:"name,omitempty"`
	Description *string                    `json:"description,omitempty"`
	IsPublic    *bool                      `json:"isPublic,omitempty"`
	Definition  *schema.WorkflowDefinition `json:"definition,omitempty"`
}

// ExecutionFilter specifies criteria for listing executions. Results are
// newest first and Limit is clamped to MaxListLimit.
type ExecutionFilter struct {
	WorkflowID string                  `json:"workflowId,omitempty"`
	UserID     string                  `json:"userId,omitempty"`
	Status     *schema.ExecutionStatus `json:"status,omitempty"`
	Limit      int                     `json:"limit,omitempty"`
}

// ExecutionUpdate specifies mutable fields of an execution.
type ExecutionUpdate struct {
	Status       *schema.ExecutionStatus `json:"status,omitempty"`
	StepResults  []schema.StepResult     `json:"stepResults,omitempty"`
	OutputData   json.RawMessage         `json:"outputData,omitempty"`
	TokensUsed   *int                    `json:"tokensUsed,omitempty"`
	ErrorMessage *string                 `json:"errorMessage,omitempty"`
	CompletedAt  *time.Time              `json:"completedAt,omitempty"`
}

// Period returns the usage period key for t.
func Period(t time.Time) string {
	return t.UTC().Format("2006-01")
}
