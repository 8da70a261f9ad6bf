package domain

import (
	"errors"
	"time"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrDuplicateJob      = errors.New("job with this name already exists")
	ErrInvalidSchedule   = errors.New("invalid schedule expression")
	ErrUnknownTimeZone   = errors.New("unknown timezone")
	ErrInvalidRetryDelay = errors.New("max_delay_s must be >= initial_delay_s")
	ErrInvalidStatus     = errors.New("invalid status value")
)

// Priority is the total order used to break ties between jobs firing in the
// same tick. Critical outranks High outranks Normal outranks Low.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Less reports whether p ranks below other, i.e. whether other should be
// served first. Higher Priority values fire first.
func (p Priority) Less(other Priority) bool {
	return p < other
}

// Compare returns -1, 0, or 1 the way sort.Interface-adjacent callers
// expect, ordering Critical before Low.
func (p Priority) Compare(other Priority) int {
	switch {
	case p > other:
		return -1
	case p < other:
		return 1
	default:
		return 0
	}
}

// ExecutionMode gates how many live executions of a job may overlap.
type ExecutionMode string

const (
	ModeSequential ExecutionMode = "sequential"
	ModeParallel   ExecutionMode = "parallel"
	ModeExclusive  ExecutionMode = "exclusive"
)

// Backoff selects the delay curve RetryEngine uses between attempts.
type Backoff string

const (
	BackoffFixed       Backoff = "fixed"
	BackoffLinear      Backoff = "linear"
	BackoffExponential Backoff = "exponential"
)

// RetryPolicy controls how many times, and how far apart, a failed execution
// is retried. MaxAttempts = 0 disables retries entirely.
type RetryPolicy struct {
	MaxAttempts  uint32        `json:"maxAttempts"`
	Backoff      Backoff       `json:"backoff"`
	InitialDelay time.Duration `json:"initialDelay"`
	MaxDelay     time.Duration `json:"maxDelay"`
}

// Validate enforces the invariant max_delay_s >= initial_delay_s (§3).
func (p RetryPolicy) Validate() error {
	if p.MaxDelay < p.InitialDelay {
		return ErrInvalidRetryDelay
	}
	return nil
}

// ResourceLimits caps a single execution's wall clock, memory, and CPU.
// Nil fields mean no limit is imposed by the core. Enforcing MaxMemoryMB and
// CPUQuota is the Spawner's job (cgroups/rlimits); the core only threads the
// values through.
type ResourceLimits struct {
	Timeout     *time.Duration `json:"timeout,omitempty"`
	MaxMemoryMB *float64       `json:"maxMemoryMB,omitempty"`
	CPUQuota    *float64       `json:"cpuQuota,omitempty"`
}

// Hooks names commands run after a terminal outcome. Hook failures are
// logged but never alter the parent execution's recorded state.
type Hooks struct {
	OnSuccessCmd *string `json:"onSuccessCmd,omitempty"`
	OnFailureCmd *string `json:"onFailureCmd,omitempty"`
}

// NotificationTarget names one place to deliver a terminal-outcome
// notification, interpreted by the Notifier collaborator.
type NotificationTarget struct {
	Kind    string `json:"kind"` // "email", "webhook", "log"
	Address string `json:"address"`
}

// NotificationConfig fans a terminal outcome out to zero or more targets.
type NotificationConfig struct {
	OnSuccess []NotificationTarget `json:"onSuccess,omitempty"`
	OnFailure []NotificationTarget `json:"onFailure,omitempty"`
}

// Job is the user-defined schedule specification. Name is unique and
// immutable once created.
type Job struct {
	Name      string   `json:"name"`
	Command   string   `json:"command"`
	Args      []string `json:"args,omitempty"`
	RunAsUser *string  `json:"runAsUser,omitempty"`

	Schedule string `json:"schedule"`
	Timezone string `json:"timezone"`
	Enabled  bool   `json:"enabled"`

	Priority      Priority      `json:"priority"`
	ExecutionMode ExecutionMode `json:"executionMode"`
	JitterSeconds uint32        `json:"jitterSeconds"`

	RetryPolicy    RetryPolicy        `json:"retryPolicy"`
	ResourceLimits ResourceLimits     `json:"resourceLimits"`
	Hooks          Hooks              `json:"hooks"`
	Notifications  NotificationConfig `json:"notifications"`
	Dependencies   []string           `json:"dependencies,omitempty"`
	Tags           []string           `json:"tags,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks the struct-level invariants spec §3 puts on a Job.
// Timezone resolvability and schedule parseability are checked by the
// usecase layer, which owns the scheduleexpr/time parsing collaborators —
// keeping this package free of that dependency.
func (j Job) Validate() error {
	if j.Name == "" {
		return ErrInvalidStatus
	}
	if j.Command == "" {
		return ErrInvalidStatus
	}
	return j.RetryPolicy.Validate()
}

// JobFilter narrows ListJobs results. Zero values mean "no filter on this
// field".
type JobFilter struct {
	Tags     []string
	Enabled  *bool
	Priority *Priority
}
