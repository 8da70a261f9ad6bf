package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrExecutionNotFound = errors.New("execution not found")
	ErrAlreadyTerminal   = errors.New("execution is already in a terminal state")
	ErrWindowClaimed     = errors.New("window already claimed")
)

// ExecutionState is a position in the execution state machine (spec §4):
// Pending -> Running -> {Succeeded, Failed, TimedOut, Cancelled}, with
// Failed/TimedOut looping back to Pending via Retrying when attempts remain.
type ExecutionState string

const (
	StatePending   ExecutionState = "pending"
	StateRunning   ExecutionState = "running"
	StateRetrying  ExecutionState = "retrying"
	StateSucceeded ExecutionState = "succeeded"
	StateFailed    ExecutionState = "failed"
	StateTimedOut  ExecutionState = "timed_out"
	StateCancelled ExecutionState = "cancelled"
)

// Terminal reports whether no further transition out of this state is
// possible for the current attempt chain.
func (s ExecutionState) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateTimedOut, StateCancelled:
		return true
	default:
		return false
	}
}

// CancelReason records why an execution was moved to Cancelled.
type CancelReason string

const (
	CancelNone               CancelReason = ""
	CancelDependencyUnmet    CancelReason = "dependency_unmet"
	CancelSequentialBusy     CancelReason = "sequential_busy"
	CancelExclusiveBusy      CancelReason = "exclusive_busy"
	CancelBackpressureDrop   CancelReason = "backpressure_dropped"
	CancelOperator           CancelReason = "operator_cancelled"
	CancelShutdown           CancelReason = "shutdown"
)

// maxCapturedOutput bounds the stdout/stderr we keep per attempt so a noisy
// job can't grow ExecutionStore without bound.
const maxCapturedOutput = 64 * 1024

// Execution is one attempt chain's worth of record: a job fires once per
// window, and every retry of that firing is folded into the same logical
// chain via ParentExecutionID rather than reusing a single row in place.
type Execution struct {
	ExecutionID         uuid.UUID
	ParentExecutionID   *uuid.UUID
	JobName             string
	WindowKey           string
	Priority            Priority
	State               ExecutionState
	Attempt             int
	ExitCode            *int
	SpawnFailed         bool
	Stdout              string
	Stderr              string
	Error               string
	CancelledBy         CancelReason

	ScheduledAt time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
	NextRetryAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewExecution starts attempt 1 of a fresh window firing, in Pending.
func NewExecution(jobName, windowKey string, priority Priority, scheduledAt, now time.Time) *Execution {
	return &Execution{
		ExecutionID: uuid.New(),
		JobName:     jobName,
		WindowKey:   windowKey,
		Priority:    priority,
		State:       StatePending,
		Attempt:     1,
		ScheduledAt: scheduledAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Retry produces the next attempt in the chain: a new Execution row linked
// to prev via ParentExecutionID, so the history of every attempt survives.
func Retry(prev *Execution, now time.Time) *Execution {
	parent := prev.ExecutionID
	return &Execution{
		ExecutionID:       uuid.New(),
		ParentExecutionID: &parent,
		JobName:           prev.JobName,
		WindowKey:         prev.WindowKey,
		Priority:          prev.Priority,
		State:             StatePending,
		Attempt:           prev.Attempt + 1,
		ScheduledAt:       now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// CapOutput truncates s to maxCapturedOutput bytes, keeping the tail end
// where error context usually lives.
func CapOutput(s string) string {
	if len(s) <= maxCapturedOutput {
		return s
	}
	return s[len(s)-maxCapturedOutput:]
}

// WindowRecord is the at-most-once claim row the ledger keeps per
// (job, window_key) pair (spec §2, invariant P1).
type WindowRecord struct {
	JobName     string
	WindowKey   string
	FiredAt     time.Time
	ExecutionID uuid.UUID
}

// ExecutionFilter narrows ListExecutions/History results. Zero values mean
// "no filter on this field".
type ExecutionFilter struct {
	JobName string
	States  []ExecutionState
	Since   *time.Time
	Limit   int
}
