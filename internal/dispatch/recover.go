package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/lunasched/lunasched/internal/domain"
	"github.com/lunasched/lunasched/internal/metrics"
	"github.com/lunasched/lunasched/internal/repository"
)

// Recover runs once before the tick loop starts (spec §4.7): any execution
// still Pending or Running from a previous process incarnation has no live
// Dispatcher worker backing it, so its true outcome is unknowable. It is
// marked Failed rather than replayed or resumed — the WindowLedger claim
// already happened and is never undone. staleAfter is the configurable
// threshold from spec §4.7 (default 5x longest timeout, min 1h); the caller
// supplies it rather than Recover hardcoding one. Grounded on the teacher's
// reaper.go heartbeat-timeout idiom, applied once at startup instead of on a
// recurring ticker, since a clean Dispatcher shutdown already drains every
// in-flight worker.
func Recover(ctx context.Context, execs repository.ExecutionStore, now time.Time, staleAfter time.Duration, logger *slog.Logger) error {
	logger = logger.With("component", "recovery")

	stale, err := execs.ListStale(ctx, now.Add(-staleAfter))
	if err != nil {
		metrics.StoreErrorsTotal.Inc()
		return err
	}

	for _, exec := range stale {
		previousState := exec.State
		exec.State = domain.StateFailed
		exec.Error = "recovered after restart: execution outcome unknown, marked failed"
		exec.FinishedAt = &now
		exec.UpdatedAt = now

		if err := execs.Update(ctx, exec); err != nil {
			metrics.StoreErrorsTotal.Inc()
			logger.ErrorContext(ctx, "update stale execution failed", "execution_id", exec.ExecutionID, "error", err)
			continue
		}
		metrics.JobExecutionsTotal.WithLabelValues(exec.JobName, string(domain.StateFailed)).Inc()
		logger.WarnContext(ctx, "recovered orphaned execution",
			"job", exec.JobName, "execution_id", exec.ExecutionID, "previous_state", previousState)
	}

	if len(stale) > 0 {
		logger.InfoContext(ctx, "recovery pass complete", "recovered", len(stale))
	}
	return nil
}
