// Package scheduler runs periodic maintenance jobs against the store.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Jinrix-labs/prompt-forge-sub000/internal/logging"
	"github.com/Jinrix-labs/prompt-forge-sub000/pkg/schema"
)

// Defaults for Retention.
const (
	DefaultSchedule = "@daily"
	DefaultMaxAge   = 90 * 24 * time.Hour
)

// Pruner deletes execution records older than a cutoff.
type Pruner interface {
	DeleteExecutionsBefore(ctx context.Context, before time.Time) (int64, error)
}

// vacuumer is implemented by stores that can reclaim space after a prune.
type vacuumer interface {
	Vacuum(ctx context.Context) error
}

// RetentionConfig configures a Retention job.
type RetentionConfig struct {
	Schedule string        // standard 5-field cron or a descriptor such as @daily
	MaxAge   time.Duration // executions started earlier than now-MaxAge are deleted
	Vacuum   bool          // compact the store after a prune that deleted rows
}

// Retention periodically deletes old execution records.
type Retention struct {
	pruner   Pruner
	schedule cron.Schedule
	spec     string
	maxAge   time.Duration
	vacuum   bool
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	running atomic.Bool
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewRetention creates a Retention job. The schedule is parsed up front.
func NewRetention(p Pruner, cfg RetentionConfig, logger *slog.Logger) (*Retention, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.MaxAge < 0 {
		return nil, schema.NewErrorf(schema.ErrCodeConfiguration, "retention max age must be positive, got %s", cfg.MaxAge)
	}
	sched, err := parser.Parse(cfg.Schedule)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfiguration, "parse retention schedule %q: %s", cfg.Schedule, err.Error()).WithCause(err)
	}
	return &Retention{
		pruner:   p,
		schedule: sched,
		spec:     cfg.Schedule,
		maxAge:   cfg.MaxAge,
		vacuum:   cfg.Vacuum,
		logger:   logging.OrDefault(logger),
		now:      time.Now,
	}, nil
}

// NextRun returns the first scheduled run after from.
func (r *Retention) NextRun(from time.Time) time.Time {
	return r.schedule.Next(from)
}

// Start registers the job on a cron runner and starts it.
func (r *Retention) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return fmt.Errorf("retention already started")
	}

	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DiscardLogger)))
	c.Schedule(r.schedule, cron.FuncJob(func() {
		if _, err := r.Prune(ctx); err != nil {
			r.logger.Error("retention prune failed", slog.String("error", err.Error()))
		}
	}))
	c.Start()
	r.cron = c

	r.logger.Info("retention started",
		slog.String("schedule", r.spec),
		slog.Duration("max_age", r.maxAge),
		slog.Time("next_run", r.NextRun(r.now())),
	)
	return nil
}

// Stop halts the cron runner and waits for a running prune to finish.
func (r *Retention) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
	r.cron = nil
	r.logger.Info("retention stopped")
}

// Prune deletes executions started before now-MaxAge and returns how many
// were removed. Overlapping calls are skipped and report zero.
func (r *Retention) Prune(ctx context.Context) (int64, error) {
	if !r.running.CompareAndSwap(false, true) {
		r.logger.Debug("retention prune already running")
		return 0, nil
	}
	defer r.running.Store(false)

	cutoff := r.now().UTC().Add(-r.maxAge)
	n, err := r.pruner.DeleteExecutionsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	r.logger.Info("pruned executions", slog.Int64("deleted", n), slog.Time("cutoff", cutoff))

	if n > 0 && r.vacuum {
		if v, ok := r.pruner.(vacuumer); ok {
			if err := v.Vacuum(ctx); err != nil {
				r.logger.Warn("vacuum after prune", slog.String("error", err.Error()))
			}
		}
	}
	return n, nil
}
