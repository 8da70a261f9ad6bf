package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lunasched/lunasched/internal/clock"
	"github.com/lunasched/lunasched/internal/domain"
	"github.com/lunasched/lunasched/internal/ledger"
	"github.com/lunasched/lunasched/internal/metrics"
	"github.com/lunasched/lunasched/internal/notify"
	"github.com/lunasched/lunasched/internal/registry"
	"github.com/lunasched/lunasched/internal/repository"
	"github.com/lunasched/lunasched/internal/scheduleexpr"
)

// ErrGateDenied is returned by StartNow when the job's execution mode
// refuses to admit one more live execution.
var ErrGateDenied = errors.New("dispatch: execution mode gate denied admission")

// defaultTickPeriod and defaultSlack match spec §4.3's suggested daemon
// tuning: evaluate jobs once a second, and tolerate up to a minute of
// scheduler downtime before a job's next fire is treated as missed rather
// than caught up on.
const (
	defaultTickPeriod = time.Second
	defaultSlack      = 60 * time.Second
)

type exprCacheEntry struct {
	raw  string
	expr scheduleexpr.Expr
}

// Scheduler is the T1 component (spec §4.3): a tick loop that evaluates
// every enabled job's schedule expression, claims its window through the
// WindowLedger, checks dependencies, gates through the ExecutionRegistry,
// and hands a permitted fire to the Dispatcher. Grounded on the teacher's
// dispatcher.go ticker idiom, generalized from a single cron field to the
// three-family ScheduleExpr grammar and the window-claim/gate pipeline.
type Scheduler struct {
	jobs       repository.JobStore
	execs      repository.ExecutionStore
	windows    *ledger.Ledger
	registry   *registry.Registry
	dispatcher *Dispatcher
	notifier   *notify.Notifier
	clock      clock.Clock
	logger     *slog.Logger

	tickPeriod time.Duration
	slack      time.Duration

	mu         sync.Mutex
	lastWindow map[string]time.Time
	exprCache  map[string]exprCacheEntry
}

// NewScheduler wires the Scheduler's collaborators. A tickPeriod or slack
// of 0 uses the package defaults.
func NewScheduler(
	jobs repository.JobStore,
	execs repository.ExecutionStore,
	windows *ledger.Ledger,
	reg *registry.Registry,
	d *Dispatcher,
	notifier *notify.Notifier,
	clk clock.Clock,
	logger *slog.Logger,
	tickPeriod, slack time.Duration,
) *Scheduler {
	if tickPeriod <= 0 {
		tickPeriod = defaultTickPeriod
	}
	if slack <= 0 {
		slack = defaultSlack
	}
	return &Scheduler{
		jobs:       jobs,
		execs:      execs,
		windows:    windows,
		registry:   reg,
		dispatcher: d,
		notifier:   notifier,
		clock:      clk,
		logger:     logger.With("component", "scheduler"),
		tickPeriod: tickPeriod,
		slack:      slack,
		lastWindow: make(map[string]time.Time),
		exprCache:  make(map[string]exprCacheEntry),
	}
}

// Dispatcher exposes the Scheduler's Dispatcher collaborator so the control
// plane can reach Dispatcher.Cancel and Dispatcher.Digest without holding a
// second reference wired in at startup.
func (s *Scheduler) Dispatcher() *Dispatcher { return s.dispatcher }

// Run evaluates every enabled job once per tickPeriod until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tickPeriod)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "scheduler started", "tick_period", s.tickPeriod, "slack", s.slack)
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "scheduler shut down")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	metrics.SchedulerTicksTotal.Inc()

	jobs, err := s.jobs.ListEnabled(ctx)
	if err != nil {
		metrics.StoreErrorsTotal.Inc()
		s.logger.ErrorContext(ctx, "list enabled jobs failed", "error", err)
		return
	}

	now := s.clock.Now()
	for _, job := range jobs {
		job := job
		go s.evaluateJob(ctx, job, now)
	}
}

// evaluateJob runs one job through the full per-tick pipeline (spec §4.3
// steps 2-7): parse, compute next fire, claim the window, check
// dependencies, gate on execution mode, and submit to the Dispatcher.
func (s *Scheduler) evaluateJob(ctx context.Context, job *domain.Job, now time.Time) {
	expr, err := s.exprFor(job)
	if err != nil {
		metrics.SchedulerErrorsTotal.Inc()
		s.logger.ErrorContext(ctx, "invalid schedule expression", "job", job.Name, "error", err)
		return
	}
	loc, err := time.LoadLocation(job.Timezone)
	if err != nil {
		metrics.SchedulerErrorsTotal.Inc()
		s.logger.ErrorContext(ctx, "invalid timezone", "job", job.Name, "timezone", job.Timezone, "error", err)
		return
	}

	reference := s.referenceFor(job, now)
	next := expr.NextAfter(reference, loc)
	if next.IsZero() {
		return
	}

	jitterBudget := time.Duration(job.JitterSeconds) * time.Second
	if next.After(now.Add(jitterBudget)) {
		return // not due yet
	}

	windowKey := scheduleexpr.WindowKey(expr, next)

	s.mu.Lock()
	s.lastWindow[job.Name] = next
	s.mu.Unlock()

	execID := uuid.New()
	result, err := s.windows.Claim(ctx, domain.WindowRecord{
		JobName: job.Name, WindowKey: windowKey, FiredAt: next, ExecutionID: execID,
	})
	if err != nil {
		metrics.StoreErrorsTotal.Inc()
		s.logger.ErrorContext(ctx, "window claim failed", "job", job.Name, "error", err)
		return
	}
	if result == ledger.AlreadyFired {
		return
	}

	if jitterBudget > 0 {
		s.clock.Sleep(time.Duration(rand.Int63n(int64(jitterBudget) + 1)))
	}

	if dep := s.unmetDependency(ctx, job, next); dep != "" {
		s.recordCancelled(ctx, job, execID, windowKey, next, 1, domain.CancelDependencyUnmet,
			fmt.Sprintf("dependency %q has no recent successful execution", dep))
		return
	}

	if !s.registry.TryAcquire(job.Name, job.ExecutionMode) {
		s.recordCancelled(ctx, job, execID, windowKey, next, 1, busyReason(job.ExecutionMode),
			"execution mode gate denied admission")
		return
	}

	req := &ExecRequest{Job: job, WindowKey: windowKey, ScheduledAt: next, ExecutionID: execID, Attempt: 1}
	ok, evicted := s.dispatcher.Submit(req)
	if !ok {
		s.registry.Release(job.Name)
		s.recordCancelled(ctx, job, execID, windowKey, next, 1, domain.CancelBackpressureDrop,
			"dispatcher queue full")
		return
	}
	if evicted != nil {
		s.dispatcher.recordEvicted(ctx, evicted)
	}
}

// referenceFor returns the reference instant NextAfter should search from:
// the job's last known fire, clamped forward to now-slack so a scheduler
// outage longer than slack doesn't replay every missed window on restart
// (spec §4.3 step 3).
func (s *Scheduler) referenceFor(job *domain.Job, now time.Time) time.Time {
	s.mu.Lock()
	anchor, seen := s.lastWindow[job.Name]
	s.mu.Unlock()
	if !seen {
		anchor = job.CreatedAt
	}
	if lowWater := now.Add(-s.slack); lowWater.After(anchor) {
		return lowWater
	}
	return anchor
}

func (s *Scheduler) exprFor(job *domain.Job) (scheduleexpr.Expr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.exprCache[job.Name]; ok && entry.raw == job.Schedule {
		return entry.expr, nil
	}
	expr, err := scheduleexpr.Parse(job.Schedule)
	if err != nil {
		return nil, err
	}
	s.exprCache[job.Name] = exprCacheEntry{raw: job.Schedule, expr: expr}
	return expr, nil
}

// unmetDependency returns the name of job's first dependency with no
// Succeeded execution in the current tick window, or "" if all are met.
func (s *Scheduler) unmetDependency(ctx context.Context, job *domain.Job, windowEnd time.Time) string {
	if len(job.Dependencies) == 0 {
		return ""
	}
	windowStart := windowEnd.Add(-s.tickPeriod)
	for _, dep := range job.Dependencies {
		ok, err := s.execs.RecentSuccess(ctx, dep, windowStart, windowEnd)
		if err != nil {
			metrics.StoreErrorsTotal.Inc()
			s.logger.ErrorContext(ctx, "dependency lookup failed", "job", job.Name, "dependency", dep, "error", err)
			return dep
		}
		if !ok {
			return dep
		}
	}
	return ""
}

func busyReason(mode domain.ExecutionMode) domain.CancelReason {
	if mode == domain.ModeExclusive {
		return domain.CancelExclusiveBusy
	}
	return domain.CancelSequentialBusy
}

func (s *Scheduler) recordCancelled(
	ctx context.Context, job *domain.Job, execID uuid.UUID, windowKey string, scheduledAt time.Time,
	attempt int, reason domain.CancelReason, msg string,
) {
	now := s.clock.Now()
	exec := &domain.Execution{
		ExecutionID: execID,
		JobName:     job.Name,
		WindowKey:   windowKey,
		Priority:    job.Priority,
		State:       domain.StateCancelled,
		Attempt:     attempt,
		CancelledBy: reason,
		Error:       msg,
		ScheduledAt: scheduledAt,
		FinishedAt:  &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.execs.Create(ctx, exec); err != nil {
		metrics.StoreErrorsTotal.Inc()
		s.logger.ErrorContext(ctx, "record cancelled execution failed", "job", job.Name, "error", err)
	}
	metrics.JobExecutionsTotal.WithLabelValues(job.Name, string(domain.StateCancelled)).Inc()
	s.notifier.Notify(ctx, exec, job)
}

// StartNow fires jobName immediately, bypassing the WindowLedger claim
// (operator-triggered execution, spec supplement to §6 control ops). It
// still goes through the execution-mode gate and the Dispatcher's priority
// queue like any other fire.
func (s *Scheduler) StartNow(ctx context.Context, jobName string) (uuid.UUID, error) {
	job, err := s.jobs.Get(ctx, jobName)
	if err != nil {
		return uuid.Nil, err
	}

	now := s.clock.Now()
	execID := uuid.New()
	windowKey := "manual:" + execID.String()

	if !s.registry.TryAcquire(job.Name, job.ExecutionMode) {
		s.recordCancelled(ctx, job, execID, windowKey, now, 1, busyReason(job.ExecutionMode),
			"execution mode gate denied admission")
		return uuid.Nil, ErrGateDenied
	}

	req := &ExecRequest{Job: job, WindowKey: windowKey, ScheduledAt: now, ExecutionID: execID, Attempt: 1, StartNow: true}
	ok, evicted := s.dispatcher.Submit(req)
	if !ok {
		s.registry.Release(job.Name)
		s.recordCancelled(ctx, job, execID, windowKey, now, 1, domain.CancelBackpressureDrop, "dispatcher queue full")
		return uuid.Nil, errors.New("dispatch: queue full")
	}
	if evicted != nil {
		s.dispatcher.recordEvicted(ctx, evicted)
	}
	return execID, nil
}
