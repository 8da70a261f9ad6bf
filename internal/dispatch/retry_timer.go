package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/lunasched/lunasched/internal/clock"
	"github.com/lunasched/lunasched/internal/domain"
	"github.com/lunasched/lunasched/internal/registry"
)

// retryJob is one pending retry: prev is the attempt that just failed, delay
// is how long to wait before the next attempt fires.
type retryJob struct {
	job   *domain.Job
	prev  *domain.Execution
	delay time.Duration
}

// RetryTimer is the Dispatcher-owned collaborator (created by NewDispatcher
// and run by Dispatcher.Run) that holds a failed execution's next attempt
// until its backoff delay elapses, then resubmits it to the Dispatcher as a
// fresh ExecRequest. It is its own goroutine so a long backoff never blocks
// a Dispatcher worker (spec.md §9's one-way channel note: retryJob values
// flow Dispatcher -> this timer over its own channel, and resubmission goes
// through Dispatcher.Submit).
type RetryTimer struct {
	dispatcher *Dispatcher
	registry   *registry.Registry
	clock      clock.Clock
	logger     *slog.Logger
	ch         chan retryJob
}

// NewRetryTimer returns a RetryTimer that resubmits through d.
func NewRetryTimer(d *Dispatcher, reg *registry.Registry, clk clock.Clock, logger *slog.Logger) *RetryTimer {
	return &RetryTimer{
		dispatcher: d,
		registry:   reg,
		clock:      clk,
		logger:     logger.With("component", "retry_timer"),
		ch:         make(chan retryJob, 1024),
	}
}

// Enqueue schedules prev's next attempt to fire after delay. Dropped
// (logged) if the internal queue is saturated, which only happens under
// sustained overload far beyond the daemon's designed capacity.
func (r *RetryTimer) Enqueue(job *domain.Job, prev *domain.Execution, delay time.Duration) {
	select {
	case r.ch <- retryJob{job: job, prev: prev, delay: delay}:
	default:
		r.logger.Error("retry timer saturated, dropping scheduled retry",
			"job", job.Name, "execution_id", prev.ExecutionID)
	}
}

// Run services the retry queue until ctx is cancelled.
func (r *RetryTimer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rj := <-r.ch:
			go r.wait(ctx, rj)
		}
	}
}

func (r *RetryTimer) wait(ctx context.Context, rj retryJob) {
	select {
	case <-ctx.Done():
		return
	case <-r.clock.After(rj.delay):
	}

	next := domain.Retry(rj.prev, r.clock.Now())
	if !r.registry.TryAcquire(rj.job.Name, rj.job.ExecutionMode) {
		r.logger.WarnContext(ctx, "retry denied by execution mode gate, giving up",
			"job", rj.job.Name, "execution_id", next.ExecutionID)
		return
	}

	req := &ExecRequest{
		Job:               rj.job,
		WindowKey:         next.WindowKey,
		ScheduledAt:       next.ScheduledAt,
		ExecutionID:       next.ExecutionID,
		Attempt:           next.Attempt,
		ParentExecutionID: next.ParentExecutionID,
	}
	ok, evicted := r.dispatcher.Submit(req)
	if !ok {
		r.registry.Release(rj.job.Name)
		r.logger.WarnContext(ctx, "retry dropped, dispatcher queue full",
			"job", rj.job.Name, "execution_id", next.ExecutionID)
		return
	}
	if evicted != nil {
		r.dispatcher.recordEvicted(ctx, evicted)
	}
}
