// Package repository declares the persistence interfaces the core uses
// (M1 JobStore/ExecutionStore/WindowStore). Concrete implementations live
// in internal/infrastructure/postgres and internal/repository/memory.
package repository

import (
	"context"

	"github.com/lunasched/lunasched/internal/domain"
)

// JobStore owns CRUD and enumeration of job definitions. The core depends
// on this interface, not a concrete driver, so Postgres can be swapped for
// the in-memory implementation in tests without touching the Scheduler.
type JobStore interface {
	Create(ctx context.Context, job *domain.Job) (*domain.Job, error)
	Update(ctx context.Context, job *domain.Job) (*domain.Job, error)
	Delete(ctx context.Context, name string) error
	Get(ctx context.Context, name string) (*domain.Job, error)

	// List returns jobs matching filter, for operator enumeration. The
	// Scheduler uses ListEnabled instead, which reads the store afresh on
	// every call (no caching).
	List(ctx context.Context, filter domain.JobFilter) ([]*domain.Job, error)
	ListEnabled(ctx context.Context) ([]*domain.Job, error)

	// CreateJobs inserts all jobs in a single transaction, used by
	// ImportConfig; if any job fails Validate or conflicts on name, the
	// whole batch is rejected.
	CreateJobs(ctx context.Context, jobs []*domain.Job) error
}
