// Package usecase wires the repository and dispatch collaborators into the
// operations the control socket and HTTP mirror expose. Grounded on the
// teacher's ScheduleUsecase: a thin service struct holding only the
// repositories/collaborators it needs, free of any transport concern.
package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lunasched/lunasched/internal/dispatch"
	"github.com/lunasched/lunasched/internal/domain"
	"github.com/lunasched/lunasched/internal/repository"
	"github.com/lunasched/lunasched/internal/scheduleexpr"
)

// Service is the operator-facing API surface, implementing every op the
// control socket and the read-only HTTP mirror expose (spec §6).
type Service struct {
	jobs      repository.JobStore
	execs     repository.ExecutionStore
	scheduler *dispatch.Scheduler
}

// NewService wires a Service from its collaborators.
func NewService(jobs repository.JobStore, execs repository.ExecutionStore, scheduler *dispatch.Scheduler) *Service {
	return &Service{jobs: jobs, execs: execs, scheduler: scheduler}
}

// validateSchedule confirms job.Schedule parses and job.Timezone resolves,
// the two checks domain.Job.Validate deliberately leaves to this layer.
func validateSchedule(job *domain.Job) error {
	if _, err := scheduleexpr.Parse(job.Schedule); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidSchedule, err)
	}
	if _, err := time.LoadLocation(job.Timezone); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnknownTimeZone, err)
	}
	return nil
}

// AddJob validates and persists a new job definition.
func (s *Service) AddJob(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	if err := validateSchedule(job); err != nil {
		return nil, err
	}
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	return s.jobs.Create(ctx, job)
}

// UpdateJob validates and persists changes to an existing job definition.
func (s *Service) UpdateJob(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	if err := validateSchedule(job); err != nil {
		return nil, err
	}
	job.UpdatedAt = time.Now()
	return s.jobs.Update(ctx, job)
}

// RemoveJob deletes a job definition by name.
func (s *Service) RemoveJob(ctx context.Context, name string) error {
	return s.jobs.Delete(ctx, name)
}

// GetJob returns a single job definition by name.
func (s *Service) GetJob(ctx context.Context, name string) (*domain.Job, error) {
	return s.jobs.Get(ctx, name)
}

// ListJobs returns job definitions matching filter.
func (s *Service) ListJobs(ctx context.Context, filter domain.JobFilter) ([]*domain.Job, error) {
	return s.jobs.List(ctx, filter)
}

// HistoryFor returns execution history for jobName matching filter.
func (s *Service) HistoryFor(ctx context.Context, jobName string, filter domain.ExecutionFilter) ([]*domain.Execution, error) {
	return s.execs.HistoryFor(ctx, jobName, filter)
}

// StartNow fires jobName immediately, bypassing the WindowLedger.
func (s *Service) StartNow(ctx context.Context, jobName string) (uuid.UUID, error) {
	return s.scheduler.StartNow(ctx, jobName)
}

// StopExecution sends SIGTERM to a currently running execution.
func (s *Service) StopExecution(_ context.Context, executionID uuid.UUID) error {
	if !s.scheduler.Dispatcher().Cancel(executionID) {
		return fmt.Errorf("execution %s is not currently running", executionID)
	}
	return nil
}

// ImportConfig validates and persists every job in jobs as a single
// all-or-nothing batch (spec §6 ImportConfig, spec supplement §9).
func (s *Service) ImportConfig(ctx context.Context, jobs []*domain.Job) error {
	now := time.Now()
	for _, job := range jobs {
		if err := job.Validate(); err != nil {
			return err
		}
		if err := validateSchedule(job); err != nil {
			return err
		}
		job.CreatedAt = now
		job.UpdatedAt = now
	}
	return s.jobs.CreateJobs(ctx, jobs)
}
