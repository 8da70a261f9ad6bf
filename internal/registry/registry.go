// Package registry implements the ExecutionRegistry: the in-memory gate
// that enforces a job's execution-mode semantics across concurrent fires.
package registry

import (
	"sync"

	"github.com/lunasched/lunasched/internal/domain"
)

// defaultParallelCeiling is the safety ceiling spec §4.3 step 7 allows
// implementations to impose on Parallel mode.
const defaultParallelCeiling = 32

// Registry maps job name to live execution count, plus a single
// system-wide exclusive holder. All mutations are serialized by mu.
type Registry struct {
	mu               sync.Mutex
	live             map[string]int
	exclusiveHolder  string
	parallelCeiling  int
}

// New returns an empty Registry. A ceiling of 0 uses the default of 32.
func New(parallelCeiling int) *Registry {
	if parallelCeiling <= 0 {
		parallelCeiling = defaultParallelCeiling
	}
	return &Registry{
		live:            make(map[string]int),
		parallelCeiling: parallelCeiling,
	}
}

// TryAcquire attempts to admit one more live execution of job under mode.
// It returns false when the mode's gate denies admission; callers record
// the matching Cancelled reason themselves (SequentialBusy, ExclusiveBusy).
func (r *Registry) TryAcquire(job string, mode domain.ExecutionMode) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.exclusiveHolder != "" && r.exclusiveHolder != job {
		return false
	}

	switch mode {
	case domain.ModeSequential:
		if r.live[job] > 0 {
			return false
		}
	case domain.ModeExclusive:
		if r.exclusiveHolder != "" || r.totalLiveLocked() > 0 {
			return false
		}
		r.exclusiveHolder = job
	case domain.ModeParallel:
		if r.live[job] >= r.parallelCeiling {
			return false
		}
	}

	r.live[job]++
	return true
}

// Release returns one live slot for job, clearing the exclusive holder if
// job was holding it and its count has dropped to zero.
func (r *Registry) Release(job string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.live[job] > 0 {
		r.live[job]--
	}
	if r.live[job] == 0 {
		delete(r.live, job)
		if r.exclusiveHolder == job {
			r.exclusiveHolder = ""
		}
	}
}

// Live reports the current live execution count for job.
func (r *Registry) Live(job string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live[job]
}

func (r *Registry) totalLiveLocked() int {
	total := 0
	for _, n := range r.live {
		total += n
	}
	return total
}
