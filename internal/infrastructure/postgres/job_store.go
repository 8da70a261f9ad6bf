package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lunasched/lunasched/internal/domain"
)

// JobStore is the Postgres-backed repository.JobStore, grounded on the
// teacher's JobRepository query shapes and its unique-violation-to-domain-
// error translation.
type JobStore struct {
	pool *pgxpool.Pool
}

// NewJobStore returns a JobStore backed by pool.
func NewJobStore(pool *pgxpool.Pool) *JobStore {
	return &JobStore{pool: pool}
}

func (r *JobStore) Create(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	argsJSON, retryJSON, limitsJSON, hooksJSON, notifyJSON, err := marshalJobColumns(job)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO jobs (
			name, command, args, run_as_user, schedule, timezone, enabled,
			priority, execution_mode, jitter_seconds, retry_policy,
			resource_limits, hooks, notifications, dependencies, tags,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW(), NOW())
		RETURNING name, command, args, run_as_user, schedule, timezone, enabled,
		          priority, execution_mode, jitter_seconds, retry_policy,
		          resource_limits, hooks, notifications, dependencies, tags,
		          created_at, updated_at`

	row := r.pool.QueryRow(ctx, query,
		job.Name, job.Command, job.Args, job.RunAsUser, job.Schedule, job.Timezone, job.Enabled,
		job.Priority.String(), string(job.ExecutionMode), job.JitterSeconds, retryJSON,
		limitsJSON, hooksJSON, notifyJSON, job.Dependencies, job.Tags,
	)

	created, err := scanJob(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrDuplicateJob
		}
		return nil, err
	}
	_ = argsJSON // args column is a native text[]; marshalJobColumns always returns a nil argsJSON
	return created, nil
}

func (r *JobStore) Update(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	_, retryJSON, limitsJSON, hooksJSON, notifyJSON, err := marshalJobColumns(job)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE jobs SET
			command = $2, args = $3, run_as_user = $4, schedule = $5, timezone = $6,
			enabled = $7, priority = $8, execution_mode = $9, jitter_seconds = $10,
			retry_policy = $11, resource_limits = $12, hooks = $13, notifications = $14,
			dependencies = $15, tags = $16, updated_at = NOW()
		WHERE name = $1
		RETURNING name, command, args, run_as_user, schedule, timezone, enabled,
		          priority, execution_mode, jitter_seconds, retry_policy,
		          resource_limits, hooks, notifications, dependencies, tags,
		          created_at, updated_at`

	row := r.pool.QueryRow(ctx, query,
		job.Name, job.Command, job.Args, job.RunAsUser, job.Schedule, job.Timezone,
		job.Enabled, job.Priority.String(), string(job.ExecutionMode), job.JitterSeconds,
		retryJSON, limitsJSON, hooksJSON, notifyJSON, job.Dependencies, job.Tags,
	)
	return scanJob(row)
}

func (r *JobStore) Delete(ctx context.Context, name string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM jobs WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (r *JobStore) Get(ctx context.Context, name string) (*domain.Job, error) {
	query := `
		SELECT name, command, args, run_as_user, schedule, timezone, enabled,
		       priority, execution_mode, jitter_seconds, retry_policy,
		       resource_limits, hooks, notifications, dependencies, tags,
		       created_at, updated_at
		FROM jobs WHERE name = $1`
	return scanJob(r.pool.QueryRow(ctx, query, name))
}

func (r *JobStore) List(ctx context.Context, filter domain.JobFilter) ([]*domain.Job, error) {
	args := []any{}
	where := []string{"TRUE"}

	if filter.Enabled != nil {
		args = append(args, *filter.Enabled)
		where = append(where, fmt.Sprintf("enabled = $%d", len(args)))
	}
	if filter.Priority != nil {
		args = append(args, filter.Priority.String())
		where = append(where, fmt.Sprintf("priority = $%d", len(args)))
	}
	if len(filter.Tags) > 0 {
		args = append(args, filter.Tags)
		where = append(where, fmt.Sprintf("tags @> $%d", len(args)))
	}

	query := fmt.Sprintf(`
		SELECT name, command, args, run_as_user, schedule, timezone, enabled,
		       priority, execution_mode, jitter_seconds, retry_policy,
		       resource_limits, hooks, notifications, dependencies, tags,
		       created_at, updated_at
		FROM jobs WHERE %s ORDER BY name ASC`, strings.Join(where, " AND "))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *JobStore) ListEnabled(ctx context.Context) ([]*domain.Job, error) {
	enabled := true
	return r.List(ctx, domain.JobFilter{Enabled: &enabled})
}

// CreateJobs inserts every job in a single transaction, used by
// ImportConfig: if any job fails validation or conflicts on name, the whole
// batch is rolled back, matching the teacher's ClaimAndFire all-or-nothing
// transaction idiom.
func (r *JobStore) CreateJobs(ctx context.Context, jobs []*domain.Job) (err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for _, job := range jobs {
		if err = job.Validate(); err != nil {
			return err
		}
		_, retryJSON, limitsJSON, hooksJSON, notifyJSON, marshalErr := marshalJobColumns(job)
		if marshalErr != nil {
			err = marshalErr
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO jobs (
				name, command, args, run_as_user, schedule, timezone, enabled,
				priority, execution_mode, jitter_seconds, retry_policy,
				resource_limits, hooks, notifications, dependencies, tags,
				created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW(), NOW())`,
			job.Name, job.Command, job.Args, job.RunAsUser, job.Schedule, job.Timezone, job.Enabled,
			job.Priority.String(), string(job.ExecutionMode), job.JitterSeconds, retryJSON,
			limitsJSON, hooksJSON, notifyJSON, job.Dependencies, job.Tags,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				err = domain.ErrDuplicateJob
			}
			return err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func marshalJobColumns(job *domain.Job) (argsJSON, retryJSON, limitsJSON, hooksJSON, notifyJSON []byte, err error) {
	if retryJSON, err = json.Marshal(job.RetryPolicy); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("marshal retry_policy: %w", err)
	}
	if limitsJSON, err = json.Marshal(job.ResourceLimits); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("marshal resource_limits: %w", err)
	}
	if hooksJSON, err = json.Marshal(job.Hooks); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("marshal hooks: %w", err)
	}
	if notifyJSON, err = json.Marshal(job.Notifications); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("marshal notifications: %w", err)
	}
	return nil, retryJSON, limitsJSON, hooksJSON, notifyJSON, nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		j                                            domain.Job
		priority, mode                               string
		retryJSON, limitsJSON, hooksJSON, notifyJSON []byte
	)
	err := row.Scan(
		&j.Name, &j.Command, &j.Args, &j.RunAsUser, &j.Schedule, &j.Timezone, &j.Enabled,
		&priority, &mode, &j.JitterSeconds, &retryJSON,
		&limitsJSON, &hooksJSON, &notifyJSON, &j.Dependencies, &j.Tags,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}

	j.Priority = parsePriority(priority)
	j.ExecutionMode = domain.ExecutionMode(mode)
	if err := json.Unmarshal(retryJSON, &j.RetryPolicy); err != nil {
		return nil, fmt.Errorf("unmarshal retry_policy: %w", err)
	}
	if err := json.Unmarshal(limitsJSON, &j.ResourceLimits); err != nil {
		return nil, fmt.Errorf("unmarshal resource_limits: %w", err)
	}
	if err := json.Unmarshal(hooksJSON, &j.Hooks); err != nil {
		return nil, fmt.Errorf("unmarshal hooks: %w", err)
	}
	if err := json.Unmarshal(notifyJSON, &j.Notifications); err != nil {
		return nil, fmt.Errorf("unmarshal notifications: %w", err)
	}
	return &j, nil
}

func parsePriority(s string) domain.Priority {
	switch s {
	case "low":
		return domain.PriorityLow
	case "high":
		return domain.PriorityHigh
	case "critical":
		return domain.PriorityCritical
	default:
		return domain.PriorityNormal
	}
}
