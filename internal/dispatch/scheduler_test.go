package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/lunasched/lunasched/internal/clock"
	"github.com/lunasched/lunasched/internal/domain"
	"github.com/lunasched/lunasched/internal/ledger"
	"github.com/lunasched/lunasched/internal/notify"
	"github.com/lunasched/lunasched/internal/registry"
	"github.com/lunasched/lunasched/internal/repository/memory"
	"github.com/lunasched/lunasched/internal/spawner"
)

func newTestScheduler(t *testing.T, start time.Time) (*Scheduler, *memory.JobStore, *memory.ExecutionStore, *clock.Fake) {
	t.Helper()
	jobs := memory.NewJobStore()
	execs := memory.NewExecutionStore()
	windows := ledger.New(ledger.NewInMemoryStore())
	reg := registry.New(0)
	sp := spawner.New(testLogger())
	logTarget := notify.NewLogTarget(testLogger())
	notifier := notify.New(map[string]notify.Target{"log": logTarget}, testLogger())
	hooks := notify.NewHookRunner(sp, testLogger())
	fake := clock.NewFake(start)
	// The Dispatcher shares the Scheduler's ExecutionStore and Registry, as
	// the daemon wires them, so dispatched executions show up in execs.
	d := NewDispatcher(execs, reg, sp, notifier, hooks, fake, testLogger(), 16, 4)
	s := NewScheduler(jobs, execs, windows, reg, d, notifier, fake, testLogger(), 100*time.Millisecond, time.Minute)
	return s, jobs, execs, fake
}

func TestSchedulerFiresDueJobExactlyOnce(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s, jobs, execs, _ := newTestScheduler(t, start)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job := &domain.Job{
		Name: "every-minute", Command: "/bin/sh", Args: []string{"-c", "true"},
		Schedule: "every 1m", Timezone: "UTC", Enabled: true,
		Priority: domain.PriorityNormal, ExecutionMode: domain.ModeParallel,
		CreatedAt: start.Add(-time.Hour),
	}
	if _, err := jobs.Create(ctx, job); err != nil {
		t.Fatalf("create job: %v", err)
	}

	go s.dispatcher.Run(ctx)

	s.tick(ctx)
	time.Sleep(50 * time.Millisecond)
	s.tick(ctx)
	time.Sleep(50 * time.Millisecond)

	history, err := execs.HistoryFor(ctx, job.Name, domain.ExecutionFilter{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected exactly one execution across two ticks, got %d", len(history))
	}
}

func TestSchedulerCancelsOnUnmetDependency(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s, jobs, execs, _ := newTestScheduler(t, start)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job := &domain.Job{
		Name: "dependent-job", Command: "/bin/sh", Args: []string{"-c", "true"},
		Schedule: "every 1m", Timezone: "UTC", Enabled: true,
		Priority: domain.PriorityNormal, ExecutionMode: domain.ModeParallel,
		Dependencies: []string{"upstream-job"},
		CreatedAt:    start.Add(-time.Hour),
	}
	if _, err := jobs.Create(ctx, job); err != nil {
		t.Fatalf("create job: %v", err)
	}

	s.tick(ctx)
	time.Sleep(50 * time.Millisecond)

	history, err := execs.HistoryFor(ctx, job.Name, domain.ExecutionFilter{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one cancelled record, got %d", len(history))
	}
	if history[0].State != domain.StateCancelled || history[0].CancelledBy != domain.CancelDependencyUnmet {
		t.Fatalf("expected Cancelled(DependencyUnmet), got state=%s reason=%s", history[0].State, history[0].CancelledBy)
	}
}

func TestSchedulerSequentialModeDeniesOverlap(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s, jobs, execs, _ := newTestScheduler(t, start)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job := &domain.Job{
		Name: "sequential-job", Command: "/bin/sh", Args: []string{"-c", "true"},
		Schedule: "every 1m", Timezone: "UTC", Enabled: true,
		Priority: domain.PriorityNormal, ExecutionMode: domain.ModeSequential,
		CreatedAt: start.Add(-time.Hour),
	}
	jobs.Create(ctx, job)

	s.registry.TryAcquire(job.Name, domain.ModeSequential)

	s.tick(ctx)
	time.Sleep(50 * time.Millisecond)

	history, err := execs.HistoryFor(ctx, job.Name, domain.ExecutionFilter{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].CancelledBy != domain.CancelSequentialBusy {
		t.Fatalf("expected one Cancelled(SequentialBusy) record, got %+v", history)
	}
}

func TestSchedulerStartNowBypassesLedger(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s, jobs, execs, _ := newTestScheduler(t, start)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.dispatcher.Run(ctx)

	job := &domain.Job{
		Name: "manual-job", Command: "/bin/sh", Args: []string{"-c", "true"},
		Schedule: "at 23:59", Timezone: "UTC", Enabled: true,
		Priority: domain.PriorityNormal, ExecutionMode: domain.ModeParallel,
		CreatedAt: start,
	}
	jobs.Create(ctx, job)

	execID, err := s.StartNow(ctx, job.Name)
	if err != nil {
		t.Fatalf("StartNow: %v", err)
	}

	exec := waitForTerminal(t, execs, execID, 2*time.Second)
	if exec.State != domain.StateSucceeded {
		t.Fatalf("expected manual fire to succeed, got %s", exec.State)
	}
}
