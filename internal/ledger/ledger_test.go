package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lunasched/lunasched/internal/domain"
)

func TestClaimAtMostOncePerWindow(t *testing.T) {
	l := New(NewInMemoryStore())
	ctx := context.Background()
	rec := domain.WindowRecord{
		JobName:     "backup",
		WindowKey:   "2026-01-01T00:00Z",
		FiredAt:     time.Now(),
		ExecutionID: uuid.New(),
	}

	result, err := l.Claim(ctx, rec)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if result != Claimed {
		t.Fatalf("first claim = %v, want Claimed", result)
	}

	rec2 := rec
	rec2.ExecutionID = uuid.New()
	result2, err := l.Claim(ctx, rec2)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if result2 != AlreadyFired {
		t.Fatalf("second claim on same window = %v, want AlreadyFired", result2)
	}
}

func TestClaimDistinctWindowsIndependent(t *testing.T) {
	l := New(NewInMemoryStore())
	ctx := context.Background()

	r1, _ := l.Claim(ctx, domain.WindowRecord{JobName: "job", WindowKey: "2026-01-01T00:00Z"})
	r2, _ := l.Claim(ctx, domain.WindowRecord{JobName: "job", WindowKey: "2026-01-01T00:01Z"})

	if r1 != Claimed || r2 != Claimed {
		t.Fatalf("distinct windows should both claim: %v, %v", r1, r2)
	}
}

func TestClaimDistinctJobsIndependent(t *testing.T) {
	l := New(NewInMemoryStore())
	ctx := context.Background()

	r1, _ := l.Claim(ctx, domain.WindowRecord{JobName: "job-a", WindowKey: "2026-01-01T00:00Z"})
	r2, _ := l.Claim(ctx, domain.WindowRecord{JobName: "job-b", WindowKey: "2026-01-01T00:00Z"})

	if r1 != Claimed || r2 != Claimed {
		t.Fatalf("same window, distinct jobs should both claim: %v, %v", r1, r2)
	}
}
