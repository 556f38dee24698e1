package workflows

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jinrix-labs/prompt-forge-sub000/internal/backends"
	"github.com/Jinrix-labs/prompt-forge-sub000/internal/engine"
	"github.com/Jinrix-labs/prompt-forge-sub000/internal/quota"
	"github.com/Jinrix-labs/prompt-forge-sub000/internal/steps"
	"github.com/Jinrix-labs/prompt-forge-sub000/internal/store"
	"github.com/Jinrix-labs/prompt-forge-sub000/internal/validation"
	"github.com/Jinrix-labs/prompt-forge-sub000/pkg/schema"
)

type stubBackend struct {
	mu    sync.Mutex
	calls int
	text  string
}

func (s *stubBackend) Name() string { return schema.ModelClaude }

func (s *stubBackend) Complete(context.Context, string, backends.Options) (*backends.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return &backends.Completion{Text: s.text, TokensUsed: 10}, nil
}

// recordingGate wraps a Gate and counts recorded runs.
type recordingGate struct {
	quota.Gate
	mu       sync.Mutex
	recorded int
	failRec  bool
}

func (g *recordingGate) RecordUsage(ctx context.Context, userID string, d quota.Decision) error {
	g.mu.Lock()
	g.recorded++
	g.mu.Unlock()
	if g.failRec {
		return errors.New("usage store down")
	}
	return g.Gate.RecordUsage(ctx, userID, d)
}

type fixture struct {
	svc     *Service
	store   *store.LibSQLStore
	backend *stubBackend
	gate    *recordingGate
}

func newFixture(t *testing.T, monthlyLimit int) *fixture {
	t.Helper()
	s, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "svc.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	backend := &stubBackend{text: "a generated answer"}
	reg := steps.NewDefaultRegistry(backends.NewSet(backend))
	v, err := validation.NewWorkflowValidator(reg)
	require.NoError(t, err)
	sg, err := quota.NewStoreGate(s, quota.Config{MonthlyLimit: monthlyLimit})
	require.NoError(t, err)
	gate := &recordingGate{Gate: sg}

	svc := NewService(Deps{
		Store:       s,
		Interpreter: engine.NewInterpreter(engine.Config{Store: s, Registry: reg}),
		Validator:   v,
		Gate:        gate,
	})
	return &fixture{svc: svc, store: s, backend: backend, gate: gate}
}

func greetingWorkflow(public bool) NewWorkflow {
	return NewWorkflow{
		Name:     "Greeter",
		IsPublic: public,
		WorkflowDefinition: schema.WorkflowDefinition{
			RequiredInputs: []string{"name"},
			Steps: []schema.StepSpec{
				{
					ID: "greet", Type: schema.StepTypePromptGeneration,
					Config: json.RawMessage(`{"promptTemplate":"Say hello to {{name}}"}`),
				},
				{
					ID: "shout", Type: schema.StepTypeTextTransform,
					Config: json.RawMessage(`{"operation":"uppercase"}`),
					Inputs: schema.Inputs{{Name: "text", Source: "greet.output"}},
				},
			},
		},
	}
}

func TestService_CreateValidates(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	wf, err := f.svc.Create(ctx, "alice", greetingWorkflow(false))
	require.NoError(t, err)
	assert.Equal(t, "alice", wf.OwnerID)
	assert.NotEmpty(t, wf.ID)

	bad := greetingWorkflow(false)
	bad.Steps[1].Type = "bogus"
	_, err = f.svc.Create(ctx, "alice", bad)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))

	noName := greetingWorkflow(false)
	noName.Name = "  "
	_, err = f.svc.Create(ctx, "alice", noName)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))

	_, err = f.svc.Create(ctx, "", greetingWorkflow(false))
	assert.Equal(t, schema.ErrCodeForbidden, schema.CodeOf(err))
}

func TestService_Visibility(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	private, err := f.svc.Create(ctx, "alice", greetingWorkflow(false))
	require.NoError(t, err)
	public, err := f.svc.Create(ctx, "alice", greetingWorkflow(true))
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, "bob", private.ID)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
	got, err := f.svc.Get(ctx, "bob", public.ID)
	require.NoError(t, err)
	assert.Equal(t, public.ID, got.ID)

	list, err := f.svc.List(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, public.ID, list[0].ID)

	list, err = f.svc.List(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestService_OwnerOnlyMutation(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	wf, err := f.svc.Create(ctx, "alice", greetingWorkflow(true))
	require.NoError(t, err)

	name := "Renamed"
	_, err = f.svc.Update(ctx, "bob", wf.ID, store.WorkflowUpdate{Name: &name})
	assert.Equal(t, schema.ErrCodeForbidden, schema.CodeOf(err))
	assert.Equal(t, schema.ErrCodeForbidden, schema.CodeOf(f.svc.Delete(ctx, "bob", wf.ID)))

	updated, err := f.svc.Update(ctx, "alice", wf.ID, store.WorkflowUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)

	empty := " "
	_, err = f.svc.Update(ctx, "alice", wf.ID, store.WorkflowUpdate{Name: &empty})
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))

	badDef := schema.WorkflowDefinition{Steps: []schema.StepSpec{}}
	_, err = f.svc.Update(ctx, "alice", wf.ID, store.WorkflowUpdate{Definition: &badDef})
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))

	require.NoError(t, f.svc.Delete(ctx, "alice", wf.ID))
	_, err = f.svc.Get(ctx, "alice", wf.ID)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(f.svc.Delete(ctx, "alice", wf.ID)))
}

func TestService_Clone(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	src, err := f.svc.Create(ctx, "alice", greetingWorkflow(true))
	require.NoError(t, err)

	cp, err := f.svc.Clone(ctx, "bob", src.ID)
	require.NoError(t, err)
	assert.NotEqual(t, src.ID, cp.ID)
	assert.Equal(t, "bob", cp.OwnerID)
	assert.Equal(t, "Greeter (copy)", cp.Name)
	assert.False(t, cp.IsPublic)
	assert.Len(t, cp.Steps, 2)

	// The clone is independent of its source.
	require.NoError(t, f.svc.Delete(ctx, "alice", src.ID))
	_, err = f.svc.Get(ctx, "bob", cp.ID)
	assert.NoError(t, err)

	private, err := f.svc.Create(ctx, "alice", greetingWorkflow(false))
	require.NoError(t, err)
	_, err = f.svc.Clone(ctx, "bob", private.ID)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

func TestService_Execute(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	wf, err := f.svc.Create(ctx, "alice", greetingWorkflow(false))
	require.NoError(t, err)

	res, err := f.svc.Execute(ctx, "alice", wf.ID, map[string]any{"name": "Ada"})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "A GENERATED ANSWER", res.Output)
	assert.Equal(t, 10, res.TokensUsed)
	assert.Equal(t, 1, f.gate.recorded)

	exec, err := f.svc.GetExecution(ctx, "alice", res.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionCompleted, exec.Status)
	assert.Len(t, exec.StepResults, 2)

	_, err = f.svc.GetExecution(ctx, "bob", res.ExecutionID)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

func TestService_ExecuteRejections(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	wf, err := f.svc.Create(ctx, "alice", greetingWorkflow(false))
	require.NoError(t, err)

	_, err = f.svc.Execute(ctx, "bob", wf.ID, map[string]any{"name": "Ada"})
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))

	_, err = f.svc.Execute(ctx, "alice", wf.ID, nil)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))

	_, err = f.svc.Execute(ctx, "alice", wf.ID, map[string]any{"name": "Ada"})
	require.NoError(t, err)

	_, err = f.svc.Execute(ctx, "alice", wf.ID, map[string]any{"name": "Ada"})
	assert.Equal(t, schema.ErrCodeQuotaExceeded, schema.CodeOf(err))

	// Rejected calls never reach the backend or the meter.
	assert.Equal(t, 1, f.backend.calls)
	assert.Equal(t, 1, f.gate.recorded)
}

func TestService_ExecutePaysOnAttempt(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	def := NewWorkflow{
		Name: "Broken",
		WorkflowDefinition: schema.WorkflowDefinition{Steps: []schema.StepSpec{{
			ID: "prompt", Type: schema.StepTypePromptGeneration,
			Config: json.RawMessage(`{"model":"groq","promptTemplate":"hi"}`),
		}}},
	}
	wf, err := f.svc.Create(ctx, "alice", def)
	require.NoError(t, err)

	// No groq backend is configured, so the step fails.
	res, err := f.svc.Execute(ctx, "alice", wf.ID, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, schema.ErrCodeConfiguration)
	assert.Equal(t, 1, f.gate.recorded)

	u, err := f.store.GetUsage(ctx, "alice", store.Period(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, 1, u.MonthlyUsed)
}

func TestService_RecordUsageFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, 10)
	f.gate.failRec = true
	ctx := context.Background()

	wf, err := f.svc.Create(ctx, "alice", greetingWorkflow(false))
	require.NoError(t, err)
	res, err := f.svc.Execute(ctx, "alice", wf.ID, map[string]any{"name": "Ada"})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestService_History(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	wf, err := f.svc.Create(ctx, "alice", greetingWorkflow(true))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.svc.Execute(ctx, "alice", wf.ID, map[string]any{"name": "Ada"})
		require.NoError(t, err)
	}
	_, err = f.svc.Execute(ctx, "bob", wf.ID, map[string]any{"name": "Bob"})
	require.NoError(t, err)

	mine, err := f.svc.History(ctx, "alice", wf.ID, 0)
	require.NoError(t, err)
	assert.Len(t, mine, 3)
	for _, e := range mine {
		assert.Equal(t, "alice", e.UserID)
	}

	limited, err := f.svc.History(ctx, "alice", wf.ID, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	bobs, err := f.svc.History(ctx, "bob", wf.ID, 10)
	require.NoError(t, err)
	assert.Len(t, bobs, 1)
}
