package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migrations is a forward-only, numbered list applied in order by Migrate.
// Nothing ever rewrites an earlier entry; a schema change is a new entry
// appended to the end.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		name            TEXT PRIMARY KEY,
		command         TEXT NOT NULL,
		args            TEXT[] NOT NULL DEFAULT '{}',
		run_as_user     TEXT,
		schedule        TEXT NOT NULL,
		timezone        TEXT NOT NULL,
		enabled         BOOLEAN NOT NULL DEFAULT TRUE,
		priority        TEXT NOT NULL,
		execution_mode  TEXT NOT NULL,
		jitter_seconds  INTEGER NOT NULL DEFAULT 0,
		retry_policy    JSONB NOT NULL,
		resource_limits JSONB NOT NULL,
		hooks           JSONB NOT NULL,
		notifications   JSONB NOT NULL,
		dependencies    TEXT[] NOT NULL DEFAULT '{}',
		tags            TEXT[] NOT NULL DEFAULT '{}',
		created_at      TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS executions (
		execution_id        UUID PRIMARY KEY,
		parent_execution_id UUID REFERENCES executions(execution_id),
		job_name            TEXT NOT NULL REFERENCES jobs(name) ON DELETE CASCADE,
		window_key          TEXT NOT NULL,
		priority            INTEGER NOT NULL,
		state               TEXT NOT NULL,
		attempt             INTEGER NOT NULL,
		exit_code           INTEGER,
		spawn_failed        BOOLEAN NOT NULL DEFAULT FALSE,
		stdout              TEXT NOT NULL DEFAULT '',
		stderr              TEXT NOT NULL DEFAULT '',
		error               TEXT NOT NULL DEFAULT '',
		cancelled_by        TEXT NOT NULL DEFAULT '',
		scheduled_at        TIMESTAMPTZ NOT NULL,
		started_at          TIMESTAMPTZ,
		finished_at         TIMESTAMPTZ,
		next_retry_at       TIMESTAMPTZ,
		created_at          TIMESTAMPTZ NOT NULL,
		updated_at          TIMESTAMPTZ NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS executions_job_name_scheduled_at_idx
		ON executions (job_name, scheduled_at DESC)`,

	`CREATE INDEX IF NOT EXISTS executions_state_created_at_idx
		ON executions (state, created_at)
		WHERE state IN ('pending', 'running')`,

	`CREATE TABLE IF NOT EXISTS windows (
		job_name     TEXT NOT NULL REFERENCES jobs(name) ON DELETE CASCADE,
		window_key   TEXT NOT NULL,
		fired_at     TIMESTAMPTZ NOT NULL,
		execution_id UUID NOT NULL,
		PRIMARY KEY (job_name, window_key)
	)`,
}

// Migrate applies every not-yet-run migration in order. Each statement is
// idempotent (IF NOT EXISTS) so Migrate is safe to call on every daemon
// startup rather than requiring a separate migration step.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
