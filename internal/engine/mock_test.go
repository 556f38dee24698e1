package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Jinrix-labs/prompt-forge-sub000/internal/steps"
	"github.com/Jinrix-labs/prompt-forge-sub000/internal/store"
	"github.com/Jinrix-labs/prompt-forge-sub000/pkg/schema"
)

// mockStore is a minimal in-memory Store for testing. Only executions are tracked.
type mockStore struct {
	mu         sync.Mutex
	executions map[string]*store.Execution
	updates    int
	failCreate bool
	failUpdate bool
}

func newMockStore() *mockStore {
	return &mockStore{executions: make(map[string]*store.Execution)}
}

func (m *mockStore) CreateExecution(_ context.Context, exec *store.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate {
		return errors.New("store unavailable")
	}
	cp := *exec
	cp.StepResults = append([]schema.StepResult(nil), exec.StepResults...)
	m.executions[exec.ID] = &cp
	return nil
}

func (m *mockStore) GetExecution(_ context.Context, id string) (*store.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exec, ok := m.executions[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "execution %q not found", id)
	}
	cp := *exec
	return &cp, nil
}

func (m *mockStore) UpdateExecution(_ context.Context, id string, u store.ExecutionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdate {
		return errors.New("store unavailable")
	}
	exec, ok := m.executions[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "execution %q not found", id)
	}
	m.updates++
	if u.Status != nil {
		exec.Status = *u.Status
	}
	if u.StepResults != nil {
		exec.StepResults = append([]schema.StepResult(nil), u.StepResults...)
	}
	if u.OutputData != nil {
		exec.OutputData = u.OutputData
	}
	if u.TokensUsed != nil {
		exec.TokensUsed = *u.TokensUsed
	}
	if u.ErrorMessage != nil {
		exec.ErrorMessage = *u.ErrorMessage
	}
	if u.CompletedAt != nil {
		exec.CompletedAt = u.CompletedAt
	}
	return nil
}

func (m *mockStore) stored(id string) *store.Execution {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.executions[id]
}

func (m *mockStore) CreateWorkflow(context.Context, *store.Workflow) error { return nil }
func (m *mockStore) GetWorkflow(_ context.Context, id string) (*store.Workflow, error) {
	return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not found", id)
}
func (m *mockStore) UpdateWorkflow(context.Context, string, store.WorkflowUpdate) error { return nil }
func (m *mockStore) ListWorkflows(context.Context, store.WorkflowFilter) ([]*store.Workflow, error) {
	return nil, nil
}
func (m *mockStore) DeleteWorkflow(context.Context, string) error { return nil }
func (m *mockStore) ListExecutions(context.Context, store.ExecutionFilter) ([]*store.Execution, error) {
	return nil, nil
}
func (m *mockStore) DeleteExecutionsBefore(context.Context, time.Time) (int64, error) { return 0, nil }
func (m *mockStore) GetUsage(_ context.Context, userID, period string) (*store.Usage, error) {
	return &store.Usage{UserID: userID, Period: period}, nil
}
func (m *mockStore) IncrementUsage(context.Context, string, string, store.Metering) error { return nil }
func (m *mockStore) AddCredits(context.Context, string, int) error                      { return nil }
func (m *mockStore) Migrate(context.Context) error                                     { return nil }
func (m *mockStore) Close() error                                                      { return nil }

var _ store.Store = (*mockStore)(nil)

// funcExecutor adapts a function to steps.Executor.
type funcExecutor struct {
	typ schema.StepType
	fn  func(ctx context.Context, req steps.Request) (*steps.Result, error)
}

func (f *funcExecutor) Type() schema.StepType { return f.typ }
func (f *funcExecutor) Description() string   { return "test executor" }
func (f *funcExecutor) Execute(ctx context.Context, req steps.Request) (*steps.Result, error) {
	return f.fn(ctx, req)
}
