package retry

import (
	"testing"
	"time"

	"github.com/lunasched/lunasched/internal/domain"
)

func TestNextDelayStrategies(t *testing.T) {
	cases := []struct {
		name    string
		policy  domain.RetryPolicy
		attempt uint32
		want    time.Duration
		wantOK  bool
	}{
		{
			name: "fixed",
			policy: domain.RetryPolicy{
				MaxAttempts: 3, Backoff: domain.BackoffFixed,
				InitialDelay: 10 * time.Second, MaxDelay: time.Minute,
			},
			attempt: 2, want: 10 * time.Second, wantOK: true,
		},
		{
			name: "linear",
			policy: domain.RetryPolicy{
				MaxAttempts: 5, Backoff: domain.BackoffLinear,
				InitialDelay: 10 * time.Second, MaxDelay: time.Hour,
			},
			attempt: 3, want: 30 * time.Second, wantOK: true,
		},
		{
			name: "exponential",
			policy: domain.RetryPolicy{
				MaxAttempts: 5, Backoff: domain.BackoffExponential,
				InitialDelay: 10 * time.Second, MaxDelay: time.Hour,
			},
			attempt: 3, want: 40 * time.Second, wantOK: true,
		},
		{
			name: "exponential clamped to max",
			policy: domain.RetryPolicy{
				MaxAttempts: 10, Backoff: domain.BackoffExponential,
				InitialDelay: 10 * time.Second, MaxDelay: 90 * time.Second,
			},
			attempt: 5, want: 90 * time.Second, wantOK: true,
		},
		{
			name: "give up beyond max attempts",
			policy: domain.RetryPolicy{
				MaxAttempts: 2, Backoff: domain.BackoffFixed,
				InitialDelay: time.Second, MaxDelay: time.Minute,
			},
			attempt: 3, want: 0, wantOK: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := NextDelay(tc.policy, tc.attempt)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if ok && got != tc.want {
				t.Fatalf("delay = %v, want %v", got, tc.want)
			}
		})
	}
}
