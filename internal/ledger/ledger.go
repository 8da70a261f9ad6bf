// Package ledger implements the WindowLedger: at-most-once-per-window
// claims over (job_name, window_key) pairs.
package ledger

import (
	"context"
	"sync"

	"github.com/lunasched/lunasched/internal/domain"
)

// ClaimResult reports the outcome of a Claim call.
type ClaimResult int

const (
	Claimed ClaimResult = iota
	AlreadyFired
)

// Store is the persistence seam WindowLedger needs: an atomic
// insert-or-detect-conflict over (job_name, window_key). The Postgres
// implementation backs this with a unique constraint and a single insert
// statement; the in-memory Store below backs it with a mutex-guarded map.
type Store interface {
	Claim(ctx context.Context, record domain.WindowRecord) (ClaimResult, error)
}

// Ledger is the WindowLedger component: a thin wrapper around a Store that
// gives the Scheduler a single Claim entrypoint.
type Ledger struct {
	store Store
}

// New wraps store as a Ledger.
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Claim atomically records that job fired for windowKey, or reports that it
// already had. The Scheduler must call this before enqueuing dispatch
// (spec §4.2); a crash between claim and dispatch is repaired by the
// startup recovery pass, which never replays the window ledger.
func (l *Ledger) Claim(ctx context.Context, record domain.WindowRecord) (ClaimResult, error) {
	return l.store.Claim(ctx, record)
}

// InMemoryStore is a Store backed by a guarded map, used in tests and
// single-process deployments without Postgres configured.
type InMemoryStore struct {
	mu      sync.Mutex
	claimed map[string]domain.WindowRecord
}

// NewInMemoryStore returns an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{claimed: make(map[string]domain.WindowRecord)}
}

func (s *InMemoryStore) Claim(_ context.Context, record domain.WindowRecord) (ClaimResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := record.JobName + "\x00" + record.WindowKey
	if _, exists := s.claimed[key]; exists {
		return AlreadyFired, nil
	}
	s.claimed[key] = record
	return Claimed, nil
}
