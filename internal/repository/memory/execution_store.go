package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lunasched/lunasched/internal/domain"
)

// ExecutionStore is an in-memory repository.ExecutionStore.
type ExecutionStore struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]*domain.Execution
	byJob map[string][]uuid.UUID // insertion order per job
}

// NewExecutionStore returns an empty ExecutionStore.
func NewExecutionStore() *ExecutionStore {
	return &ExecutionStore{
		byID:  make(map[uuid.UUID]*domain.Execution),
		byJob: make(map[string][]uuid.UUID),
	}
}

func (s *ExecutionStore) Create(_ context.Context, exec *domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *exec
	s.byID[exec.ExecutionID] = &clone
	s.byJob[exec.JobName] = append(s.byJob[exec.JobName], exec.ExecutionID)
	return nil
}

func (s *ExecutionStore) Update(_ context.Context, exec *domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[exec.ExecutionID]; !exists {
		return domain.ErrExecutionNotFound
	}
	clone := *exec
	s.byID[exec.ExecutionID] = &clone
	return nil
}

func (s *ExecutionStore) Get(_ context.Context, id uuid.UUID) (*domain.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exec, exists := s.byID[id]
	if !exists {
		return nil, domain.ErrExecutionNotFound
	}
	clone := *exec
	return &clone, nil
}

func (s *ExecutionStore) HistoryFor(_ context.Context, jobName string, filter domain.ExecutionFilter) ([]*domain.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byJob[jobName]
	out := make([]*domain.Execution, 0, len(ids))
	for _, id := range ids {
		exec := s.byID[id]
		if !matchesExecutionFilter(exec, filter) {
			continue
		}
		clone := *exec
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *ExecutionStore) RecentSuccess(_ context.Context, jobName string, windowStart, windowEnd time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.byJob[jobName] {
		exec := s.byID[id]
		if exec.State != domain.StateSucceeded {
			continue
		}
		if !exec.ScheduledAt.Before(windowStart) && !exec.ScheduledAt.After(windowEnd) {
			return true, nil
		}
	}
	return false, nil
}

func (s *ExecutionStore) ListStale(_ context.Context, cutoff time.Time) ([]*domain.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Execution
	for _, exec := range s.byID {
		if exec.State != domain.StatePending && exec.State != domain.StateRunning {
			continue
		}
		if exec.StartedAt != nil && exec.StartedAt.Before(cutoff) {
			clone := *exec
			out = append(out, &clone)
		}
	}
	return out, nil
}

func matchesExecutionFilter(exec *domain.Execution, filter domain.ExecutionFilter) bool {
	if filter.Since != nil && exec.CreatedAt.Before(*filter.Since) {
		return false
	}
	if len(filter.States) > 0 {
		found := false
		for _, s := range filter.States {
			if exec.State == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
