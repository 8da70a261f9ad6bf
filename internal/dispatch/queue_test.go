package dispatch

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lunasched/lunasched/internal/domain"
)

func reqWith(name string, priority domain.Priority, scheduledAt time.Time) *ExecRequest {
	return &ExecRequest{
		Job:         &domain.Job{Name: name, Priority: priority},
		ScheduledAt: scheduledAt,
		ExecutionID: uuid.New(),
	}
}

func TestWorkQueuePopsHighestPriorityFirst(t *testing.T) {
	q := newWorkQueue(10)
	now := time.Now()

	ok, evicted := q.submit(reqWith("low", domain.PriorityLow, now))
	if !ok || evicted != nil {
		t.Fatal("submit under capacity should always admit without eviction")
	}
	ok, evicted = q.submit(reqWith("critical", domain.PriorityCritical, now))
	if !ok || evicted != nil {
		t.Fatal("submit under capacity should always admit without eviction")
	}
	ok, evicted = q.submit(reqWith("normal", domain.PriorityNormal, now))
	if !ok || evicted != nil {
		t.Fatal("submit under capacity should always admit without eviction")
	}

	first, ok := q.pop()
	if !ok || first.Job.Name != "critical" {
		t.Fatalf("expected critical first, got %+v", first)
	}
	second, ok := q.pop()
	if !ok || second.Job.Name != "normal" {
		t.Fatalf("expected normal second, got %+v", second)
	}
	third, ok := q.pop()
	if !ok || third.Job.Name != "low" {
		t.Fatalf("expected low third, got %+v", third)
	}
}

func TestWorkQueueTieBreaksOnScheduledAtThenName(t *testing.T) {
	q := newWorkQueue(10)
	now := time.Now()

	q.submit(reqWith("zeta", domain.PriorityNormal, now))
	q.submit(reqWith("alpha", domain.PriorityNormal, now))
	q.submit(reqWith("beta", domain.PriorityNormal, now.Add(-time.Second)))

	first, _ := q.pop()
	if first.Job.Name != "beta" {
		t.Fatalf("earlier ScheduledAt should win regardless of name, got %s", first.Job.Name)
	}
	second, _ := q.pop()
	if second.Job.Name != "alpha" {
		t.Fatalf("equal ScheduledAt should tie-break lexicographically, got %s", second.Job.Name)
	}
}

func TestWorkQueueEvictsLeastUrgentWhenFull(t *testing.T) {
	q := newWorkQueue(2)
	now := time.Now()

	q.submit(reqWith("low", domain.PriorityLow, now))
	q.submit(reqWith("normal", domain.PriorityNormal, now))

	ok, evicted := q.submit(reqWith("critical", domain.PriorityCritical, now))
	if !ok {
		t.Fatal("more urgent request should be admitted by evicting the least urgent")
	}
	if evicted == nil || evicted.Job.Name != "low" {
		t.Fatalf("expected low priority request to be evicted, got %+v", evicted)
	}
	if q.len() != 2 {
		t.Fatalf("queue should still be at capacity, got %d", q.len())
	}
}

func TestWorkQueueDropsLessUrgentWhenFull(t *testing.T) {
	q := newWorkQueue(2)
	now := time.Now()

	q.submit(reqWith("high-a", domain.PriorityHigh, now))
	q.submit(reqWith("high-b", domain.PriorityHigh, now))

	ok, evicted := q.submit(reqWith("low", domain.PriorityLow, now))
	if ok || evicted != nil {
		t.Fatalf("a less urgent request should be dropped outright, got ok=%v evicted=%+v", ok, evicted)
	}
	if q.len() != 2 {
		t.Fatalf("queue length should be unchanged, got %d", q.len())
	}
}

func TestWorkQueuePopUnblocksOnClose(t *testing.T) {
	q := newWorkQueue(10)
	done := make(chan struct{})
	go func() {
		_, ok := q.pop()
		if ok {
			t.Error("pop on a closed empty queue should report ok=false")
		}
		close(done)
	}()

	q.closeForShutdown()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pop did not unblock after closeForShutdown")
	}
}
