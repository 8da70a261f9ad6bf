package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lunasched/lunasched/internal/clock"
	"github.com/lunasched/lunasched/internal/domain"
	"github.com/lunasched/lunasched/internal/log"
	"github.com/lunasched/lunasched/internal/metrics"
	"github.com/lunasched/lunasched/internal/notify"
	"github.com/lunasched/lunasched/internal/registry"
	"github.com/lunasched/lunasched/internal/repository"
	"github.com/lunasched/lunasched/internal/retry"
	"github.com/lunasched/lunasched/internal/spawner"
)

// defaultPoolSize is the bounded worker pool's default size (spec §4.4).
const defaultPoolSize = 64

// Dispatcher is the T2 component (spec §4.4): a bounded priority queue of
// ExecRequests drained by a fixed-size worker pool, each worker taking a
// request from queue to a terminal Execution row via the Spawner, RetryEngine,
// Notifier, and HookRunner. Grounded on the teacher's worker.go WaitGroup
// concurrency idiom, generalized from a fixed poll-batch to a blocking
// priority pop.
type Dispatcher struct {
	queue      *workQueue
	execs      repository.ExecutionStore
	registry   *registry.Registry
	spawner    *spawner.Spawner
	notifier   *notify.Notifier
	hooks      *notify.HookRunner
	clock      clock.Clock
	logger     *slog.Logger
	retryTimer *RetryTimer
	digest     *metrics.Digest

	poolSize int
	wg       sync.WaitGroup

	cancelsMu sync.Mutex
	cancels   map[uuid.UUID]context.CancelFunc
}

// Digest exposes the Dispatcher's per-job duration reservoir for ad-hoc
// quantile queries. No control or transport/http handler reads it.
func (d *Dispatcher) Digest() *metrics.Digest { return d.digest }

// NewDispatcher returns a Dispatcher with a bounded queue of queueCapacity
// and poolSize worker goroutines. A poolSize <= 0 uses defaultPoolSize.
func NewDispatcher(
	execs repository.ExecutionStore,
	reg *registry.Registry,
	sp *spawner.Spawner,
	notifier *notify.Notifier,
	hooks *notify.HookRunner,
	clk clock.Clock,
	logger *slog.Logger,
	queueCapacity, poolSize int,
) *Dispatcher {
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}
	d := &Dispatcher{
		queue:    newWorkQueue(queueCapacity),
		execs:    execs,
		registry: reg,
		spawner:  sp,
		notifier: notifier,
		hooks:    hooks,
		clock:    clk,
		logger:   logger.With("component", "dispatcher"),
		poolSize: poolSize,
		digest:   metrics.NewDigest(),
		cancels:  make(map[uuid.UUID]context.CancelFunc),
	}
	d.retryTimer = NewRetryTimer(d, reg, clk, logger)
	return d
}

// Submit hands req to the Dispatcher's queue. ok is false when req itself
// was dropped under backpressure; evicted is non-nil when req displaced a
// less urgent queued request, which the caller (Scheduler or RetryTimer)
// must record as Cancelled(BackpressureDropped) and release the evicted
// request's registry permit for.
func (d *Dispatcher) Submit(req *ExecRequest) (ok bool, evicted *ExecRequest) {
	ok, evicted = d.queue.submit(req)
	metrics.QueueDepth.Set(float64(d.queue.len()))
	return ok, evicted
}

// Run starts the worker pool and the RetryTimer, blocking until ctx is
// cancelled, then drains in-flight workers before returning.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.InfoContext(ctx, "dispatcher started", "workers", d.poolSize)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.retryTimer.Run(ctx)
	}()

	for i := 0; i < d.poolSize; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}

	<-ctx.Done()
	d.queue.closeForShutdown()
	d.wg.Wait()
	d.logger.InfoContext(ctx, "dispatcher shut down")
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	for {
		req, ok := d.queue.pop()
		if !ok {
			return
		}
		metrics.QueueDepth.Set(float64(d.queue.len()))
		func() {
			defer func() {
				if r := recover(); r != nil {
					d.logger.ErrorContext(ctx, "dispatcher worker recovered from panic",
						"job", req.Job.Name, "execution_id", req.ExecutionID, "panic", r)
				}
			}()
			d.handle(ctx, req)
		}()
	}
}

// recordEvicted persists a Cancelled(BackpressureDropped) row for a request
// the queue displaced to admit a more urgent one, and releases the registry
// permit it was holding.
func (d *Dispatcher) recordEvicted(ctx context.Context, req *ExecRequest) {
	d.registry.Release(req.Job.Name)

	now := d.clock.Now()
	exec := &domain.Execution{
		ExecutionID:       req.ExecutionID,
		ParentExecutionID: req.ParentExecutionID,
		JobName:           req.Job.Name,
		WindowKey:         req.WindowKey,
		Priority:          req.Job.Priority,
		State:             domain.StateCancelled,
		Attempt:           attemptOf(req),
		CancelledBy:       domain.CancelBackpressureDrop,
		Error:             "evicted from dispatcher queue by a more urgent request",
		ScheduledAt:       req.ScheduledAt,
		FinishedAt:        &now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := d.execs.Create(ctx, exec); err != nil {
		metrics.StoreErrorsTotal.Inc()
		d.logger.ErrorContext(ctx, "record evicted execution failed", "job", req.Job.Name, "error", err)
	}
	metrics.JobExecutionsTotal.WithLabelValues(req.Job.Name, string(domain.StateCancelled)).Inc()
	d.notifier.Notify(ctx, exec, req.Job)
}

// Cancel requests that the running execution identified by id be sent
// SIGTERM via the Spawner's context cancellation (spec §6 StopExecution).
// It reports false if no running execution with that ID is tracked.
func (d *Dispatcher) Cancel(id uuid.UUID) bool {
	d.cancelsMu.Lock()
	cancel, ok := d.cancels[id]
	d.cancelsMu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

func attemptOf(req *ExecRequest) int {
	if req.Attempt <= 0 {
		return 1
	}
	return req.Attempt
}

// handle runs one ExecRequest to a terminal (or Retrying) Execution row:
// create the Pending record, transition to Running, spawn the command, then
// record the outcome and fan out notifications and hooks.
func (d *Dispatcher) handle(ctx context.Context, req *ExecRequest) {
	defer d.registry.Release(req.Job.Name)
	ctx = log.WithExecutionID(ctx, req.ExecutionID.String())

	now := d.clock.Now()
	exec := &domain.Execution{
		ExecutionID:       req.ExecutionID,
		ParentExecutionID: req.ParentExecutionID,
		JobName:           req.Job.Name,
		WindowKey:         req.WindowKey,
		Priority:          req.Job.Priority,
		State:             domain.StatePending,
		Attempt:           attemptOf(req),
		ScheduledAt:       req.ScheduledAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := d.execs.Create(ctx, exec); err != nil {
		metrics.StoreErrorsTotal.Inc()
		d.logger.ErrorContext(ctx, "create execution record failed", "job", req.Job.Name, "error", err)
		return
	}

	startedAt := d.clock.Now()
	exec.State = domain.StateRunning
	exec.StartedAt = &startedAt
	exec.UpdatedAt = startedAt
	if err := d.execs.Update(ctx, exec); err != nil {
		metrics.StoreErrorsTotal.Inc()
		d.logger.ErrorContext(ctx, "mark execution running failed", "job", req.Job.Name, "error", err)
	}

	env := []string{
		"LUNASCHED_JOB_NAME=" + req.Job.Name,
		"LUNASCHED_EXECUTION_ID=" + req.ExecutionID.String(),
		fmt.Sprintf("LUNASCHED_ATTEMPT=%d", exec.Attempt),
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancelsMu.Lock()
	d.cancels[req.ExecutionID] = cancel
	d.cancelsMu.Unlock()
	defer func() {
		cancel()
		d.cancelsMu.Lock()
		delete(d.cancels, req.ExecutionID)
		d.cancelsMu.Unlock()
	}()

	result := d.spawner.Run(runCtx, req.Job.Command, req.Job.Args, req.Job.ResourceLimits, req.Job.RunAsUser, env)

	finishedAt := d.clock.Now()
	exec.FinishedAt = &finishedAt
	exec.UpdatedAt = finishedAt
	exec.Stdout = result.Stdout
	exec.Stderr = result.Stderr
	exitCode := result.ExitCode
	exec.ExitCode = &exitCode
	exec.SpawnFailed = result.SpawnFailed

	switch {
	case result.SpawnFailed:
		exec.Error = result.Err.Error()
		exec.State = domain.StateFailed
	case errors.Is(runCtx.Err(), context.Canceled):
		exec.Error = "execution cancelled by operator"
		exec.State = domain.StateCancelled
		exec.CancelledBy = domain.CancelOperator
	case result.TimedOut:
		exec.Error = "execution exceeded its configured timeout"
		exec.State = domain.StateTimedOut
	case result.ExitCode != 0:
		exec.Error = fmt.Sprintf("command exited with status %d", result.ExitCode)
		exec.State = domain.StateFailed
	default:
		exec.State = domain.StateSucceeded
	}

	metrics.JobDurationMillis.WithLabelValues(req.Job.Name).Observe(float64(result.Duration.Milliseconds()))
	d.digest.Observe(req.Job.Name, result.Duration)

	// Operator-cancelled executions are terminal: spec §5 excludes them from
	// the retry path entirely.
	if exec.State != domain.StateSucceeded && exec.State != domain.StateCancelled {
		// MaxAttempts counts total attempts, so attempt n is retried only
		// while n < MaxAttempts. NextDelay's attemptIndex is the retry about
		// to be scheduled (1 = first retry), which equals n, per spec §4.5.
		var delay time.Duration
		shouldRetry := uint32(exec.Attempt) < req.Job.RetryPolicy.MaxAttempts
		if shouldRetry {
			delay, shouldRetry = retry.NextDelay(req.Job.RetryPolicy, uint32(exec.Attempt))
		}
		if shouldRetry {
			exec.State = domain.StateRetrying
			nextAt := d.clock.Now().Add(delay)
			exec.NextRetryAt = &nextAt
			if err := d.execs.Update(ctx, exec); err != nil {
				metrics.StoreErrorsTotal.Inc()
				d.logger.ErrorContext(ctx, "update execution for retry failed", "job", req.Job.Name, "error", err)
			}
			metrics.JobExecutionsTotal.WithLabelValues(req.Job.Name, string(exec.State)).Inc()
			d.retryTimer.Enqueue(req.Job, exec, delay)
			return
		}
	}

	if err := d.execs.Update(ctx, exec); err != nil {
		metrics.StoreErrorsTotal.Inc()
		d.logger.ErrorContext(ctx, "update terminal execution failed", "job", req.Job.Name, "error", err)
	}
	metrics.JobExecutionsTotal.WithLabelValues(req.Job.Name, string(exec.State)).Inc()
	d.notifier.Notify(ctx, exec, req.Job)
	d.hooks.Run(ctx, req.Job, exec)
}
