// Package memory implements repository.JobStore and repository.ExecutionStore
// over guarded in-process maps, for tests and single-process deployments
// run without LUNASCHED_DB configured.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/lunasched/lunasched/internal/domain"
)

// JobStore is an in-memory repository.JobStore.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
}

// NewJobStore returns an empty JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*domain.Job)}
}

func (s *JobStore) Create(_ context.Context, job *domain.Job) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name]; exists {
		return nil, domain.ErrDuplicateJob
	}
	clone := *job
	s.jobs[job.Name] = &clone
	return &clone, nil
}

func (s *JobStore) Update(_ context.Context, job *domain.Job) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name]; !exists {
		return nil, domain.ErrJobNotFound
	}
	clone := *job
	clone.UpdatedAt = time.Now()
	s.jobs[job.Name] = &clone
	return &clone, nil
}

func (s *JobStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; !exists {
		return domain.ErrJobNotFound
	}
	delete(s.jobs, name)
	return nil
}

func (s *JobStore) Get(_ context.Context, name string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[name]
	if !exists {
		return nil, domain.ErrJobNotFound
	}
	clone := *job
	return &clone, nil
}

func (s *JobStore) List(_ context.Context, filter domain.JobFilter) ([]*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Job
	for _, job := range s.jobs {
		if !matchesFilter(job, filter) {
			continue
		}
		clone := *job
		out = append(out, &clone)
	}
	return out, nil
}

func (s *JobStore) ListEnabled(ctx context.Context) ([]*domain.Job, error) {
	enabled := true
	return s.List(ctx, domain.JobFilter{Enabled: &enabled})
}

func (s *JobStore) CreateJobs(_ context.Context, jobs []*domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range jobs {
		if err := job.Validate(); err != nil {
			return err
		}
		if _, exists := s.jobs[job.Name]; exists {
			return domain.ErrDuplicateJob
		}
	}
	for _, job := range jobs {
		clone := *job
		s.jobs[job.Name] = &clone
	}
	return nil
}

func matchesFilter(job *domain.Job, filter domain.JobFilter) bool {
	if filter.Enabled != nil && job.Enabled != *filter.Enabled {
		return false
	}
	if filter.Priority != nil && job.Priority != *filter.Priority {
		return false
	}
	if len(filter.Tags) > 0 {
		for _, want := range filter.Tags {
			found := false
			for _, have := range job.Tags {
				if have == want {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}
