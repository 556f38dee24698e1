package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jinrix-labs/prompt-forge-sub000/internal/store"
	"github.com/Jinrix-labs/prompt-forge-sub000/pkg/schema"
)

type mockPruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	deleted int64
	err     error
	vacuums int
	block   chan struct{}
	entered chan struct{}
}

func (m *mockPruner) DeleteExecutionsBefore(_ context.Context, before time.Time) (int64, error) {
	if m.entered != nil {
		m.entered <- struct{}{}
	}
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cutoffs = append(m.cutoffs, before)
	return m.deleted, m.err
}

func (m *mockPruner) Vacuum(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vacuums++
	return nil
}

var fixedNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func newTestRetention(t *testing.T, p Pruner, cfg RetentionConfig) *Retention {
	t.Helper()
	r, err := NewRetention(p, cfg, nil)
	require.NoError(t, err)
	r.now = func() time.Time { return fixedNow }
	return r
}

func TestNewRetention_Defaults(t *testing.T) {
	r := newTestRetention(t, &mockPruner{}, RetentionConfig{})
	assert.Equal(t, DefaultSchedule, r.spec)
	assert.Equal(t, DefaultMaxAge, r.maxAge)
	next := r.NextRun(fixedNow)
	assert.True(t, next.After(fixedNow))
	assert.LessOrEqual(t, next.Sub(fixedNow), 24*time.Hour)
}

func TestNewRetention_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  RetentionConfig
	}{
		{"bad schedule", RetentionConfig{Schedule: "every tuesday"}},
		{"too many fields", RetentionConfig{Schedule: "0 0 * * * *"}},
		{"negative max age", RetentionConfig{MaxAge: -time.Hour}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRetention(&mockPruner{}, tt.cfg, nil)
			assert.Equal(t, schema.ErrCodeConfiguration, schema.CodeOf(err))
		})
	}
}

func TestNextRun_CronExpression(t *testing.T) {
	r := newTestRetention(t, &mockPruner{}, RetentionConfig{Schedule: "CRON_TZ=UTC 30 3 * * *"})
	assert.True(t, time.Date(2026, 10, 19, 3, 30, 0, 0, time.UTC).Equal(r.NextRun(fixedNow)))
}

func TestPrune_UsesCutoff(t *testing.T) {
	p := &mockPruner{deleted: 4}
	r := newTestRetention(t, p, RetentionConfig{MaxAge: 48 * time.Hour})

	n, err := r.Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	require.Len(t, p.cutoffs, 1)
	assert.True(t, fixedNow.Add(-48*time.Hour).Equal(p.cutoffs[0]))
	assert.Zero(t, p.vacuums)
}

func TestPrune_VacuumOnlyAfterDeletes(t *testing.T) {
	p := &mockPruner{}
	r := newTestRetention(t, p, RetentionConfig{Vacuum: true})

	_, err := r.Prune(context.Background())
	require.NoError(t, err)
	assert.Zero(t, p.vacuums)

	p.deleted = 2
	_, err = r.Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, p.vacuums)
}

func TestPrune_Error(t *testing.T) {
	p := &mockPruner{err: errors.New("disk full")}
	r := newTestRetention(t, p, RetentionConfig{})
	_, err := r.Prune(context.Background())
	assert.EqualError(t, err, "disk full")
}

func TestPrune_SkipsOverlappingRun(t *testing.T) {
	p := &mockPruner{deleted: 1, block: make(chan struct{}), entered: make(chan struct{})}
	r := newTestRetention(t, p, RetentionConfig{})

	done := make(chan int64)
	go func() {
		n, _ := r.Prune(context.Background())
		done <- n
	}()
	<-p.entered

	n, err := r.Prune(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	close(p.block)
	assert.Equal(t, int64(1), <-done)
}

func TestStartStop(t *testing.T) {
	r := newTestRetention(t, &mockPruner{}, RetentionConfig{})
	ctx := context.Background()

	require.NoError(t, r.Start(ctx))

	// Double start should error.
	err := r.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")

	r.Stop()
	// Stop again should be a no-op.
	r.Stop()

	require.NoError(t, r.Start(ctx))
	r.Stop()
}

func TestPrune_LibSQLStore(t *testing.T) {
	s, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "retention.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	wf := &store.Workflow{
		ID: uuid.New().String(), OwnerID: "u", Name: "w",
		WorkflowDefinition: schema.WorkflowDefinition{Steps: []schema.StepSpec{{ID: "a", Type: schema.StepTypeTextCombine}}},
	}
	require.NoError(t, s.CreateWorkflow(ctx, wf))

	for _, started := range []time.Time{
		fixedNow.AddDate(0, -6, 0),
		fixedNow.AddDate(0, -4, 0),
		fixedNow.AddDate(0, 0, -1),
	} {
		require.NoError(t, s.CreateExecution(ctx, &store.Execution{
			ID: uuid.New().String(), WorkflowID: wf.ID, UserID: "u",
			Status: schema.ExecutionCompleted, StartedAt: started,
		}))
	}

	r := newTestRetention(t, s, RetentionConfig{Vacuum: true})
	n, err := r.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	left, err := s.ListExecutions(ctx, store.ExecutionFilter{WorkflowID: wf.ID})
	require.NoError(t, err)
	assert.Len(t, left, 1)
}
