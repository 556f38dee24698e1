package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Jinrix-labs/prompt-forge-sub000/internal/logging"
	"github.com/Jinrix-labs/prompt-forge-sub000/internal/store"
)

// handleExecute runs a workflow. A failed run is returned as an error
// result that still carries the partial trace.
func (s *Server) handleExecute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	userID, err := req.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError("user_id is required"), nil
	}
	inputs := mcp.ParseStringMap(req, "inputs", nil)

	ctx = logging.WithUserID(ctx, userID)
	res, runErr := s.svc.Execute(ctx, userID, workflowID, inputs)
	if runErr != nil {
		s.logger.WarnContext(ctx, "mcp execute rejected",
			slog.String("workflow_id", workflowID), slog.String("error", runErr.Error()))
		return mcp.NewToolResultError(runErr.Error()), nil
	}

	result, err := marshalResult(res)
	if err != nil {
		return nil, err
	}
	result.IsError = !res.Success
	return result, nil
}

// handleHistory lists the caller's runs of a workflow.
func (s *Server) handleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	userID, err := req.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError("user_id is required"), nil
	}
	limit := req.GetInt("limit", store.MaxListLimit)

	execs, histErr := s.svc.History(ctx, userID, workflowID, limit)
	if histErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("history query failed: %v", histErr)), nil
	}
	if execs == nil {
		execs = []*store.Execution{}
	}
	return marshalResult(map[string]any{
		"workflow_id": workflowID,
		"executions":  execs,
		"total":       len(execs),
	})
}

// workflowSummary is the list view of a workflow.
type workflowSummary struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	OwnerID        string   `json:"ownerId"`
	IsPublic       bool     `json:"isPublic"`
	Steps          int      `json:"steps"`
	RequiredInputs []string `json:"requiredInputs,omitempty"`
}

// handleListWorkflows lists the workflows a user can run.
func (s *Server) handleListWorkflows(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := req.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError("user_id is required"), nil
	}

	list, listErr := s.svc.List(ctx, userID)
	if listErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list workflows failed: %v", listErr)), nil
	}
	out := make([]workflowSummary, 0, len(list))
	for _, wf := range list {
		out = append(out, workflowSummary{
			ID:             wf.ID,
			Name:           wf.Name,
			Description:    wf.Description,
			OwnerID:        wf.OwnerID,
			IsPublic:       wf.IsPublic,
			Steps:          len(wf.Steps),
			RequiredInputs: wf.RequiredInputs,
		})
	}
	return marshalResult(map[string]any{"workflows": out, "total": len(out)})
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
