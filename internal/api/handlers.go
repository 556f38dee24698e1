package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Jinrix-labs/prompt-forge-sub000/internal/store"
	"github.com/Jinrix-labs/prompt-forge-sub000/internal/workflows"
	"github.com/Jinrix-labs/prompt-forge-sub000/pkg/schema"
)

// Health reports liveness.
// (GET /healthz)
func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// ListWorkflows returns the caller's workflows and all public ones.
// (GET /api/v1/workflows)
func (s *Server) ListWorkflows(c echo.Context) error {
	list, err := s.svc.List(c.Request().Context(), userID(c))
	if err != nil {
		return err
	}
	if list == nil {
		list = []*store.Workflow{}
	}
	return c.JSON(http.StatusOK, list)
}

// CreateWorkflow stores a new workflow owned by the caller.
// (POST /api/v1/workflows)
func (s *Server) CreateWorkflow(c echo.Context) error {
	var body workflows.NewWorkflow
	if err := c.Bind(&body); err != nil {
		return badRequest(err)
	}
	wf, err := s.svc.Create(c.Request().Context(), userID(c), body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, wf)
}

// GetWorkflow returns a readable workflow.
// (GET /api/v1/workflows/:id)
func (s *Server) GetWorkflow(c echo.Context) error {
	wf, err := s.svc.Get(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, wf)
}

// updateRequest is a partial workflow update. Steps replaces the whole step
// list; RequiredInputs alone keeps the current steps.
type updateRequest struct {
	Name           *string           `json:"name"`
	Description    *string           `json:"description"`
	IsPublic       *bool             `json:"isPublic"`
	Steps          []schema.StepSpec `json:"steps"`
	RequiredInputs *[]string         `json:"requiredInputs"`
}

// UpdateWorkflow applies a partial update. Owner only.
// (PUT /api/v1/workflows/:id)
func (s *Server) UpdateWorkflow(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	var body updateRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(err)
	}
	update := store.WorkflowUpdate{Name: body.Name, Description: body.Description, IsPublic: body.IsPublic}

	if body.Steps != nil || body.RequiredInputs != nil {
		current, err := s.svc.Get(ctx, userID(c), id)
		if err != nil {
			return err
		}
		def := current.WorkflowDefinition.Clone()
		if body.Steps != nil {
			def.Steps = body.Steps
		}
		if body.RequiredInputs != nil {
			def.RequiredInputs = *body.RequiredInputs
		}
		update.Definition = &def
	}

	wf, err := s.svc.Update(ctx, userID(c), id, update)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, wf)
}

// DeleteWorkflow removes a workflow and its history. Owner only.
// (DELETE /api/v1/workflows/:id)
func (s *Server) DeleteWorkflow(c echo.Context) error {
	if err := s.svc.Delete(c.Request().Context(), userID(c), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// CloneWorkflow copies a readable workflow into a private one owned by the caller.
// (POST /api/v1/workflows/:id/clone)
func (s *Server) CloneWorkflow(c echo.Context) error {
	wf, err := s.svc.Clone(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, wf)
}

type executeRequest struct {
	Inputs map[string]any `json:"inputs"`
}

// ExecuteWorkflow runs a workflow. A step failure is a 500 carrying the
// partial trace.
// (POST /api/v1/workflows/:id/execute)
func (s *Server) ExecuteWorkflow(c echo.Context) error {
	var body executeRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(err)
	}
	res, err := s.svc.Execute(c.Request().Context(), userID(c), c.Param("id"), body.Inputs)
	if err != nil {
		return err
	}
	status := http.StatusOK
	if !res.Success {
		status = http.StatusInternalServerError
	}
	return c.JSON(status, res)
}

// ListExecutions returns the caller's runs of a workflow, newest first.
// (GET /api/v1/workflows/:id/executions?limit=N)
func (s *Server) ListExecutions(c echo.Context) error {
	limit := queryInt(c, "limit", store.MaxListLimit)
	execs, err := s.svc.History(c.Request().Context(), userID(c), c.Param("id"), limit)
	if err != nil {
		return err
	}
	if execs == nil {
		execs = []*store.Execution{}
	}
	return c.JSON(http.StatusOK, execs)
}

// GetExecution returns one of the caller's executions.
// (GET /api/v1/executions/:id)
func (s *Server) GetExecution(c echo.Context) error {
	exec, err := s.svc.GetExecution(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, exec)
}

func badRequest(err error) error {
	return schema.NewErrorf(schema.ErrCodeValidation, "invalid request body: %s", bindMessage(err)).WithCause(err)
}

func bindMessage(err error) string {
	if he, ok := err.(*echo.HTTPError); ok {
		if he.Internal != nil {
			return he.Internal.Error()
		}
		if msg, ok := he.Message.(string); ok {
			return msg
		}
	}
	return err.Error()
}

// queryInt extracts an integer query param with a default value.
func queryInt(c echo.Context, key string, def int) int {
	v := c.QueryParam(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
