package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lunasched/lunasched/internal/domain"
)

// ExecutionStore persists Execution records. Dispatcher workers are the
// only writers of a given row after Create; the Scheduler creates Cancelled
// rows for fires it refuses and otherwise reads only through RecentSuccess
// for dependency checks.
type ExecutionStore interface {
	Create(ctx context.Context, exec *domain.Execution) error
	Update(ctx context.Context, exec *domain.Execution) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Execution, error)

	// HistoryFor lists executions for jobName matching filter, most recent
	// first.
	HistoryFor(ctx context.Context, jobName string, filter domain.ExecutionFilter) ([]*domain.Execution, error)

	// RecentSuccess reports whether jobName has a Succeeded execution whose
	// ScheduledAt falls within [windowStart, windowEnd] — the dependency
	// check in spec §4.3 step 5.
	RecentSuccess(ctx context.Context, jobName string, windowStart, windowEnd time.Time) (bool, error)

	// ListStale returns Pending/Running executions with StartedAt before
	// cutoff, for the startup recovery pass (spec §4.7 Recovery).
	ListStale(ctx context.Context, cutoff time.Time) ([]*domain.Execution, error)
}
