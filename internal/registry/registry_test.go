package registry

import (
	"testing"

	"github.com/lunasched/lunasched/internal/domain"
)

func TestSequentialModeDeniesSecondLiveExecution(t *testing.T) {
	r := New(0)
	if !r.TryAcquire("job-a", domain.ModeSequential) {
		t.Fatal("first acquire should succeed")
	}
	if r.TryAcquire("job-a", domain.ModeSequential) {
		t.Fatal("second concurrent acquire of a sequential job should be denied")
	}
	r.Release("job-a")
	if !r.TryAcquire("job-a", domain.ModeSequential) {
		t.Fatal("acquire after release should succeed")
	}
}

func TestParallelModeRespectsCeiling(t *testing.T) {
	r := New(2)
	if !r.TryAcquire("job-b", domain.ModeParallel) {
		t.Fatal("1st acquire should succeed")
	}
	if !r.TryAcquire("job-b", domain.ModeParallel) {
		t.Fatal("2nd acquire should succeed under ceiling")
	}
	if r.TryAcquire("job-b", domain.ModeParallel) {
		t.Fatal("3rd acquire should be denied at ceiling 2")
	}
}

func TestExclusiveModeBlocksEverythingElse(t *testing.T) {
	r := New(0)
	if !r.TryAcquire("job-excl", domain.ModeExclusive) {
		t.Fatal("exclusive acquire should succeed when nothing else is live")
	}
	if r.TryAcquire("job-other", domain.ModeParallel) {
		t.Fatal("other jobs must not start while an exclusive execution is live")
	}
	r.Release("job-excl")
	if !r.TryAcquire("job-other", domain.ModeParallel) {
		t.Fatal("other jobs should be able to start after the exclusive holder releases")
	}
}

func TestExclusiveDeniedWhenAnyOtherJobIsLive(t *testing.T) {
	r := New(0)
	if !r.TryAcquire("job-a", domain.ModeParallel) {
		t.Fatal("setup acquire should succeed")
	}
	if r.TryAcquire("job-excl", domain.ModeExclusive) {
		t.Fatal("exclusive acquire must fail while any other execution is live system-wide")
	}
}
