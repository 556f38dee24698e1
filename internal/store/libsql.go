package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/Jinrix-labs/prompt-forge-sub000/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum compacts the database file after large deletions.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Workflows ---

const workflowColumns = "id, owner_id, name, description, is_public, definition, created_at, updated_at"

func (s *LibSQLStore) CreateWorkflow(ctx context.Context, wf *Workflow) error {
	def, err := json.Marshal(wf.WorkflowDefinition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	now := time.Now().UTC()
	wf.CreatedAt = timeOr(wf.CreatedAt, now)
	wf.UpdatedAt = timeOr(wf.UpdatedAt, wf.CreatedAt)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (`+workflowColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		wf.ID, wf.OwnerID, wf.Name, nullStr(wf.Description), boolInt(wf.IsPublic),
		string(def), wf.CreatedAt, wf.UpdatedAt,
	)
	return storeErr("create workflow", err)
}

func (s *LibSQLStore) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = ?`, id)
	wf, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("workflow", id)
	}
	if err != nil {
		return nil, err
	}
	return wf, nil
}

func (s *LibSQLStore) UpdateWorkflow(ctx context.Context, id string, update WorkflowUpdate) error {
	var sets []string
	var args []any

	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, nullStr(*update.Description))
	}
	if update.IsPublic != nil {
		sets = append(sets, "is_public = ?")
		args = append(args, boolInt(*update.IsPublic))
	}
	if update.Definition != nil {
		def, err := json.Marshal(update.Definition)
		if err != nil {
			return fmt.Errorf("marshal definition: %w", err)
		}
		sets = append(sets, "definition = ?")
		args = append(args, string(def))
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	query := fmt.Sprintf("UPDATE workflows SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return storeErr("update workflow", err)
	}
	return checkRowsAffected(res, "workflow", id)
}

func (s *LibSQLStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*Workflow, error) {
	var where []string
	var args []any

	switch {
	case filter.OwnerID != "" && filter.IncludePublic:
		where = append(where, "(owner_id = ? OR is_public = 1)")
		args = append(args, filter.OwnerID)
	case filter.OwnerID != "":
		where = append(where, "owner_id = ?")
		args = append(args, filter.OwnerID)
	case filter.IncludePublic:
		where = append(where, "is_public = 1")
	}

	query := "SELECT " + workflowColumns + " FROM workflows"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list workflows", err)
	}
	defer rows.Close()

	var workflows []*Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

// DeleteWorkflow removes a workflow; its executions are removed by cascade.
func (s *LibSQLStore) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return storeErr("delete workflow", err)
	}
	return checkRowsAffected(res, "workflow", id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*Workflow, error) {
	wf := &Workflow{}
	var (
		desc     sql.NullString
		isPublic int
		defJSON  string
	)
	if err := row.Scan(&wf.ID, &wf.OwnerID, &wf.Name, &desc, &isPublic, &defJSON, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
		return nil, err
	}
	wf.Description = desc.String
	wf.IsPublic = isPublic != 0
	if err := json.Unmarshal([]byte(defJSON), &wf.WorkflowDefinition); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}
	return wf, nil
}

// --- Executions ---

const executionColumns = "id, workflow_id, user_id, status, input_data, step_results, output_data, tokens_used, error_message, started_at, completed_at"

func (s *LibSQLStore) CreateExecution(ctx context.Context, exec *Execution) error {
	input, err := marshalMapOrDefault(exec.InputData)
	if err != nil {
		return fmt.Errorf("marshal input_data: %w", err)
	}
	results, err := marshalResults(exec.StepResults)
	if err != nil {
		return err
	}
	exec.StartedAt = timeOr(exec.StartedAt, time.Now().UTC())

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflow_executions (`+executionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.WorkflowID, exec.UserID, string(exec.Status),
		string(input), string(results), nullRaw(exec.OutputData), exec.TokensUsed,
		nullStr(exec.ErrorMessage), exec.StartedAt, nullTime(exec.CompletedAt),
	)
	return storeErr("create execution", err)
}

func (s *LibSQLStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM workflow_executions WHERE id = ?`, id)
	exec, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("execution", id)
	}
	if err != nil {
		return nil, err
	}
	return exec, nil
}

func (s *LibSQLStore) UpdateExecution(ctx context.Context, id string, update ExecutionUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.StepResults != nil {
		results, err := marshalResults(update.StepResults)
		if err != nil {
			return err
		}
		sets = append(sets, "step_results = ?")
		args = append(args, string(results))
	}
	if update.OutputData != nil {
		sets = append(sets, "output_data = ?")
		args = append(args, string(update.OutputData))
	}
	if update.TokensUsed != nil {
		sets = append(sets, "tokens_used = ?")
		args = append(args, *update.TokensUsed)
	}
	if update.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, nullStr(*update.ErrorMessage))
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE workflow_executions SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return storeErr("update execution", err)
	}
	return checkRowsAffected(res, "execution", id)
}

func (s *LibSQLStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error) {
	var where []string
	var args []any

	if filter.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}

	query := "SELECT " + executionColumns + " FROM workflow_executions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY started_at DESC, rowid DESC LIMIT %d", ClampLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list executions", err)
	}
	defer rows.Close()

	var execs []*Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, exec)
	}
	return execs, rows.Err()
}

// DeleteExecutionsBefore removes executions started before the cutoff and
// returns how many were deleted.
func (s *LibSQLStore) DeleteExecutionsBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflow_executions WHERE started_at < ?`, before.UTC())
	if err != nil {
		return 0, storeErr("prune executions", err)
	}
	return res.RowsAffected()
}

func scanExecution(row rowScanner) (*Execution, error) {
	exec := &Execution{}
	var (
		status, inputJSON, resultsJSON string
		outputJSON, errMsg             sql.NullString
		completedAt                    sql.NullTime
	)
	if err := row.Scan(&exec.ID, &exec.WorkflowID, &exec.UserID, &status, &inputJSON, &resultsJSON,
		&outputJSON, &exec.TokensUsed, &errMsg, &exec.StartedAt, &completedAt); err != nil {
		return nil, err
	}
	exec.Status = schema.ExecutionStatus(status)
	if inputJSON != "" {
		_ = json.Unmarshal([]byte(inputJSON), &exec.InputData)
	}
	if err := json.Unmarshal([]byte(resultsJSON), &exec.StepResults); err != nil {
		return nil, fmt.Errorf("unmarshal step_results: %w", err)
	}
	if exec.StepResults == nil {
		exec.StepResults = []schema.StepResult{}
	}
	exec.OutputData = rawOrNil(outputJSON)
	exec.ErrorMessage = errMsg.String
	if completedAt.Valid {
		exec.CompletedAt = &completedAt.Time
	}
	return exec, nil
}

// --- Usage ---

// GetUsage returns the user's counters for period. A stored counter from an
// earlier period reads as zero; credits carry over.
func (s *LibSQLStore) GetUsage(ctx context.Context, userID, period string) (*Usage, error) {
	u := &Usage{UserID: userID}
	var storedPeriod string
	err := s.db.QueryRowContext(ctx,
		`SELECT period, monthly_used, credits, updated_at FROM user_usage WHERE user_id = ?`, userID,
	).Scan(&storedPeriod, &u.MonthlyUsed, &u.Credits, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		u.Period = period
		return u, nil
	}
	if err != nil {
		return nil, storeErr("get usage", err)
	}
	if storedPeriod != period {
		u.MonthlyUsed = 0
	}
	u.Period = period
	return u, nil
}

// IncrementUsage charges one run. Monthly metering bumps the period counter,
// resetting it when the period changes; credit metering consumes one credit
// and fails with QUOTA_EXCEEDED when none remain.
func (s *LibSQLStore) IncrementUsage(ctx context.Context, userID, period string, metering Metering) error {
	now := time.Now().UTC()
	switch metering {
	case MeteringMonthly:
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO user_usage (user_id, period, monthly_used, credits, updated_at) VALUES (?, ?, 1, 0, ?)
			 ON CONFLICT(user_id) DO UPDATE SET
			   monthly_used = CASE WHEN user_usage.period = excluded.period THEN user_usage.monthly_used + 1 ELSE 1 END,
			   period = excluded.period,
			   updated_at = excluded.updated_at`,
			userID, period, now,
		)
		return storeErr("increment usage", err)
	case MeteringCredits:
		res, err := s.db.ExecContext(ctx,
			`UPDATE user_usage SET credits = credits - 1, updated_at = ? WHERE user_id = ? AND credits > 0`,
			now, userID,
		)
		if err != nil {
			return storeErr("consume credit", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return schema.NewErrorf(schema.ErrCodeQuotaExceeded, "user %q has no credits remaining", userID)
		}
		return nil
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown metering %q", metering)
	}
}

// AddCredits adds pay-per-use credits to a user's balance.
func (s *LibSQLStore) AddCredits(ctx context.Context, userID string, credits int) error {
	if credits <= 0 {
		return schema.NewError(schema.ErrCodeValidation, "credits must be positive")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_usage (user_id, period, monthly_used, credits, updated_at) VALUES (?, '', 0, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET credits = user_usage.credits + excluded.credits, updated_at = excluded.updated_at`,
		userID, credits, time.Now().UTC(),
	)
	return storeErr("add credits", err)
}

// --- Helpers ---

// ClampLimit bounds a history listing size to (0, MaxListLimit].
func ClampLimit(limit int) int {
	if limit <= 0 || limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

func storeNotFound(resource, id string) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return schema.NewErrorf(schema.ErrCodeStore, "%s: %s", op, err.Error()).WithCause(err)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOr(t, fallback time.Time) time.Time {
	if t.IsZero() {
		return fallback
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalMapOrDefault(m map[string]any) (json.RawMessage, error) {
	if len(m) == 0 {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(m)
}

func marshalResults(results []schema.StepResult) (json.RawMessage, error) {
	if len(results) == 0 {
		return json.RawMessage("[]"), nil
	}
	b, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("marshal step_results: %w", err)
	}
	return b, nil
}

var _ Store = (*LibSQLStore)(nil)
