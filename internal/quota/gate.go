// Package quota decides whether a user may start a run and meters the
// runs that start.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/Jinrix-labs/prompt-forge-sub000/internal/expressions"
	"github.com/Jinrix-labs/prompt-forge-sub000/internal/store"
	"github.com/Jinrix-labs/prompt-forge-sub000/pkg/schema"
)

// Defaults for StoreGate.
const (
	DefaultMonthlyLimit = 50
	DefaultRule         = "monthly_used < monthly_limit || credits > 0"
)

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed  bool           `json:"allowed"`
	Metering store.Metering `json:"metering,omitempty"`
	Reason   string         `json:"reason,omitempty"`
}

// Err returns a QUOTA_EXCEEDED error for a denied decision, nil otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return schema.NewError(schema.ErrCodeQuotaExceeded, d.Reason)
}

// Gate is the authorization boundary in front of the interpreter.
type Gate interface {
	// Check decides whether userID may start a run and how it is metered.
	Check(ctx context.Context, userID string) (Decision, error)
	// RecordUsage charges one run according to d.
	RecordUsage(ctx context.Context, userID string, d Decision) error
}

// Config configures a StoreGate.
type Config struct {
	MonthlyLimit int
	// Rule is an expr boolean over monthly_used, monthly_limit, credits and user_id.
	Rule string
}

// StoreGate evaluates an expr allow rule against usage counters kept in a store.Store.
type StoreGate struct {
	store  store.Store
	limit  int
	rule   string
	engine *expressions.ExprEngine
	now    func() time.Time
}

// NewStoreGate creates a StoreGate. The rule is compiled up front so a bad
// rule fails at startup rather than on the first run.
func NewStoreGate(s store.Store, cfg Config) (*StoreGate, error) {
	if cfg.MonthlyLimit < 0 {
		return nil, schema.NewErrorf(schema.ErrCodeConfiguration, "quota monthly limit must be >= 0, got %d", cfg.MonthlyLimit)
	}
	if cfg.Rule == "" {
		cfg.Rule = DefaultRule
	}
	g := &StoreGate{
		store:  s,
		limit:  cfg.MonthlyLimit,
		rule:   cfg.Rule,
		engine: expressions.NewExprEngine(),
		now:    time.Now,
	}
	if err := g.engine.Compile(g.rule, g.env("", &store.Usage{})); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfiguration, "invalid quota rule %q: %s", g.rule, err.Error()).WithCause(err)
	}
	return g, nil
}

func (g *StoreGate) env(userID string, u *store.Usage) map[string]any {
	return map[string]any{
		"user_id":       userID,
		"monthly_used":  u.MonthlyUsed,
		"monthly_limit": g.limit,
		"credits":       u.Credits,
	}
}

// Check reads the user's counters for the current period and evaluates the rule.
func (g *StoreGate) Check(ctx context.Context, userID string) (Decision, error) {
	usage, err := g.store.GetUsage(ctx, userID, store.Period(g.now()))
	if err != nil {
		return Decision{}, err
	}

	allowed, err := g.engine.EvaluateBool(ctx, g.rule, g.env(userID, usage))
	if err != nil {
		return Decision{}, err
	}

	metering := store.MeteringMonthly
	if usage.MonthlyUsed >= g.limit {
		metering = store.MeteringCredits
	}
	if !allowed {
		return Decision{
			Metering: metering,
			Reason: fmt.Sprintf("monthly limit of %d runs reached (%d used) and %d credits remaining",
				g.limit, usage.MonthlyUsed, usage.Credits),
		}, nil
	}
	return Decision{Allowed: true, Metering: metering}, nil
}

// RecordUsage increments the monthly counter or consumes one credit.
func (g *StoreGate) RecordUsage(ctx context.Context, userID string, d Decision) error {
	if !d.Allowed {
		return schema.NewError(schema.ErrCodeQuotaExceeded, "cannot record usage for a denied run")
	}
	return g.store.IncrementUsage(ctx, userID, store.Period(g.now()), d.Metering)
}

// AllowAll admits every run and meters nothing. Used for local CLI runs.
type AllowAll struct{}

func (AllowAll) Check(context.Context, string) (Decision, error) {
	return Decision{Allowed: true, Reason: "unmetered"}, nil
}

func (AllowAll) RecordUsage(context.Context, string, Decision) error { return nil }

var (
	_ Gate = (*StoreGate)(nil)
	_ Gate = AllowAll{}
)
