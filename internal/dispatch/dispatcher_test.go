package dispatch

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lunasched/lunasched/internal/clock"
	"github.com/lunasched/lunasched/internal/domain"
	"github.com/lunasched/lunasched/internal/notify"
	"github.com/lunasched/lunasched/internal/registry"
	"github.com/lunasched/lunasched/internal/repository/memory"
	"github.com/lunasched/lunasched/internal/spawner"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *memory.ExecutionStore, *registry.Registry, *clock.Fake) {
	t.Helper()
	execs := memory.NewExecutionStore()
	reg := registry.New(0)
	sp := spawner.New(testLogger())
	logTarget := notify.NewLogTarget(testLogger())
	notifier := notify.New(map[string]notify.Target{"log": logTarget}, testLogger())
	hooks := notify.NewHookRunner(sp, testLogger())
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	d := NewDispatcher(execs, reg, sp, notifier, hooks, fake, testLogger(), 16, 4)
	return d, execs, reg, fake
}

func waitForTerminal(t *testing.T, execs *memory.ExecutionStore, id uuid.UUID, timeout time.Duration) *domain.Execution {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		exec, err := execs.Get(context.Background(), id)
		if err == nil && exec.State.Terminal() {
			return exec
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("execution %s did not reach a terminal state within %s", id, timeout)
	return nil
}

func TestDispatcherRunsSuccessfulExecution(t *testing.T) {
	d, execs, _, _ := newTestDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	job := &domain.Job{
		Name: "echo-job", Command: "/bin/sh", Args: []string{"-c", "echo hi"},
		Priority: domain.PriorityNormal, ExecutionMode: domain.ModeParallel,
	}
	execID := uuid.New()
	ok, evicted := d.Submit(&ExecRequest{Job: job, WindowKey: "w1", ScheduledAt: time.Now(), ExecutionID: execID, Attempt: 1})
	if !ok || evicted != nil {
		t.Fatalf("submit should succeed with no eviction, got ok=%v evicted=%+v", ok, evicted)
	}

	exec := waitForTerminal(t, execs, execID, 2*time.Second)
	if exec.State != domain.StateSucceeded {
		t.Fatalf("expected Succeeded, got %s (error=%q)", exec.State, exec.Error)
	}
	if exec.Stdout != "hi\n" {
		t.Fatalf("stdout = %q, want %q", exec.Stdout, "hi\n")
	}
}

func TestDispatcherCancelMarksExecutionCancelledWithoutRetry(t *testing.T) {
	d, execs, _, _ := newTestDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	job := &domain.Job{
		Name: "long-job", Command: "/bin/sh", Args: []string{"-c", "sleep 5"},
		Priority: domain.PriorityNormal, ExecutionMode: domain.ModeParallel,
		RetryPolicy: domain.RetryPolicy{
			MaxAttempts: 3, Backoff: domain.BackoffFixed,
			InitialDelay: time.Millisecond, MaxDelay: time.Millisecond,
		},
	}
	execID := uuid.New()
	ok, _ := d.Submit(&ExecRequest{Job: job, WindowKey: "w1", ScheduledAt: time.Now(), ExecutionID: execID, Attempt: 1})
	if !ok {
		t.Fatal("submit should succeed")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		exec, err := execs.Get(context.Background(), execID)
		if err == nil && exec.State == domain.StateRunning {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if !d.Cancel(execID) {
		t.Fatal("Cancel should find the running execution")
	}

	exec := waitForTerminal(t, execs, execID, 2*time.Second)
	if exec.State != domain.StateCancelled {
		t.Fatalf("expected Cancelled, got %s (error=%q)", exec.State, exec.Error)
	}
	if exec.CancelledBy != domain.CancelOperator {
		t.Fatalf("expected CancelledBy=%s, got %s", domain.CancelOperator, exec.CancelledBy)
	}

	time.Sleep(50 * time.Millisecond)
	history, err := execs.HistoryFor(context.Background(), job.Name, domain.ExecutionFilter{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected no retry to be scheduled after an operator cancel, got %d execution rows", len(history))
	}
}

func TestDispatcherRetriesFailedExecution(t *testing.T) {
	d, execs, reg, fake := newTestDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	job := &domain.Job{
		Name: "flaky-job", Command: "/bin/sh", Args: []string{"-c", "exit 1"},
		Priority: domain.PriorityNormal, ExecutionMode: domain.ModeParallel,
		RetryPolicy: domain.RetryPolicy{
			MaxAttempts: 2, Backoff: domain.BackoffFixed,
			InitialDelay: time.Second, MaxDelay: time.Second,
		},
	}
	reg.TryAcquire(job.Name, job.ExecutionMode)
	execID := uuid.New()
	ok, _ := d.Submit(&ExecRequest{Job: job, WindowKey: "w1", ScheduledAt: time.Now(), ExecutionID: execID, Attempt: 1})
	if !ok {
		t.Fatal("submit should succeed")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		exec, err := execs.Get(context.Background(), execID)
		if err == nil && exec.State == domain.StateRetrying {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	exec, err := execs.Get(context.Background(), execID)
	if err != nil {
		t.Fatalf("get execution: %v", err)
	}
	if exec.State != domain.StateRetrying {
		t.Fatalf("expected Retrying after first failure, got %s", exec.State)
	}
	// Give the RetryTimer's goroutine a moment to register its clock.After
	// wait before we advance the fake clock past it.
	time.Sleep(20 * time.Millisecond)

	fake.Advance(2 * time.Second)

	deadline = time.Now().Add(2 * time.Second)
	var finalExec *domain.Execution
	for time.Now().Before(deadline) {
		history, err := execs.HistoryFor(context.Background(), job.Name, domain.ExecutionFilter{States: []domain.ExecutionState{domain.StateFailed}})
		if err == nil && len(history) > 0 {
			finalExec = history[0]
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if finalExec == nil {
		t.Fatal("expected a Failed execution after retries are exhausted")
	}
	if finalExec.Attempt != 2 {
		t.Fatalf("expected second attempt to be final, got attempt %d", finalExec.Attempt)
	}
	if finalExec.ParentExecutionID == nil || *finalExec.ParentExecutionID != execID {
		t.Fatalf("retry row should link back to the original execution via ParentExecutionID")
	}
}
