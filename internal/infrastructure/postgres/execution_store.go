package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lunasched/lunasched/internal/domain"
)

// ExecutionStore is the Postgres-backed repository.ExecutionStore. Grounded
// on the teacher's AttemptRepository scan idiom, folded into a single table
// since Lunasched links retries via ParentExecutionID rather than a
// separate attempts table.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore returns an ExecutionStore backed by pool.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

func (r *ExecutionStore) Create(ctx context.Context, exec *domain.Execution) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO executions (
			execution_id, parent_execution_id, job_name, window_key, priority,
			state, attempt, exit_code, spawn_failed, stdout, stderr, error,
			cancelled_by, scheduled_at, started_at, finished_at, next_retry_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		exec.ExecutionID, exec.ParentExecutionID, exec.JobName, exec.WindowKey, int(exec.Priority),
		string(exec.State), exec.Attempt, exec.ExitCode, exec.SpawnFailed,
		domain.CapOutput(exec.Stdout), domain.CapOutput(exec.Stderr), exec.Error,
		string(exec.CancelledBy), exec.ScheduledAt, exec.StartedAt, exec.FinishedAt, exec.NextRetryAt,
		exec.CreatedAt, exec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create execution: %w", err)
	}
	return nil
}

func (r *ExecutionStore) Update(ctx context.Context, exec *domain.Execution) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE executions SET
			state = $2, attempt = $3, exit_code = $4, spawn_failed = $5,
			stdout = $6, stderr = $7, error = $8, cancelled_by = $9,
			started_at = $10, finished_at = $11, next_retry_at = $12, updated_at = $13
		WHERE execution_id = $1`,
		exec.ExecutionID, string(exec.State), exec.Attempt, exec.ExitCode, exec.SpawnFailed,
		domain.CapOutput(exec.Stdout), domain.CapOutput(exec.Stderr), exec.Error, string(exec.CancelledBy),
		exec.StartedAt, exec.FinishedAt, exec.NextRetryAt, exec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrExecutionNotFound
	}
	return nil
}

func (r *ExecutionStore) Get(ctx context.Context, id uuid.UUID) (*domain.Execution, error) {
	row := r.pool.QueryRow(ctx, executionSelectColumns+` FROM executions WHERE execution_id = $1`, id)
	return scanExecution(row)
}

func (r *ExecutionStore) HistoryFor(ctx context.Context, jobName string, filter domain.ExecutionFilter) ([]*domain.Execution, error) {
	args := []any{jobName}
	where := []string{"job_name = $1"}

	if len(filter.States) > 0 {
		states := make([]string, len(filter.States))
		for i, s := range filter.States {
			states[i] = string(s)
		}
		args = append(args, states)
		where = append(where, fmt.Sprintf("state = ANY($%d)", len(args)))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		where = append(where, fmt.Sprintf("scheduled_at >= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	query := fmt.Sprintf(`%s FROM executions WHERE %s ORDER BY scheduled_at DESC LIMIT $%d`,
		executionSelectColumns, strings.Join(where, " AND "), len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history for: %w", err)
	}
	defer rows.Close()

	var execs []*domain.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, e)
	}
	return execs, rows.Err()
}

func (r *ExecutionStore) RecentSuccess(ctx context.Context, jobName string, windowStart, windowEnd time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM executions
			WHERE job_name = $1 AND state = $2
			  AND scheduled_at BETWEEN $3 AND $4
		)`, jobName, string(domain.StateSucceeded), windowStart, windowEnd).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("recent success: %w", err)
	}
	return exists, nil
}

func (r *ExecutionStore) ListStale(ctx context.Context, cutoff time.Time) ([]*domain.Execution, error) {
	query := fmt.Sprintf(`%s FROM executions
		WHERE state IN ($1, $2) AND started_at < $3
		ORDER BY started_at ASC`, executionSelectColumns)

	rows, err := r.pool.Query(ctx, query, string(domain.StatePending), string(domain.StateRunning), cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale: %w", err)
	}
	defer rows.Close()

	var execs []*domain.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, e)
	}
	return execs, rows.Err()
}

const executionSelectColumns = `
	SELECT execution_id, parent_execution_id, job_name, window_key, priority,
	       state, attempt, exit_code, spawn_failed, stdout, stderr, error,
	       cancelled_by, scheduled_at, started_at, finished_at, next_retry_at,
	       created_at, updated_at`

func scanExecution(row rowScanner) (*domain.Execution, error) {
	var (
		e                domain.Execution
		priority         int
		state, cancelled string
	)
	err := row.Scan(
		&e.ExecutionID, &e.ParentExecutionID, &e.JobName, &e.WindowKey, &priority,
		&state, &e.Attempt, &e.ExitCode, &e.SpawnFailed, &e.Stdout, &e.Stderr, &e.Error,
		&cancelled, &e.ScheduledAt, &e.StartedAt, &e.FinishedAt, &e.NextRetryAt,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("scan execution: %w", err)
	}
	e.Priority = domain.Priority(priority)
	e.State = domain.ExecutionState(state)
	e.CancelledBy = domain.CancelReason(cancelled)
	return &e, nil
}
