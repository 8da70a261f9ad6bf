// Package dispatch implements the Scheduler (T1) tick loop and the
// Dispatcher (T2) priority queue and worker pool.
package dispatch

import (
	"time"

	"github.com/google/uuid"
	"github.com/lunasched/lunasched/internal/domain"
)

// ExecRequest is what the Scheduler hands the Dispatcher once a window has
// been claimed and the execution-mode gate has granted a permit.
type ExecRequest struct {
	Job               *domain.Job
	WindowKey         string
	ScheduledAt       time.Time
	ExecutionID       uuid.UUID
	Attempt           int
	ParentExecutionID *uuid.UUID

	// StartNow is true for operator-triggered fires that bypass the
	// WindowLedger claim.
	StartNow bool
}
