// Package retry implements the RetryEngine: a pure function from a retry
// policy and attempt index to the next delay, or a signal to give up.
package retry

import (
	"time"

	"github.com/lunasched/lunasched/internal/domain"
)

// NextDelay computes the delay before attemptIndex (1 = first retry, per
// spec), clamped to [0, policy.MaxDelay]. The second return value is false
// once attemptIndex exceeds policy.MaxAttempts, signalling give-up.
func NextDelay(policy domain.RetryPolicy, attemptIndex uint32) (time.Duration, bool) {
	if attemptIndex > policy.MaxAttempts {
		return 0, false
	}

	var delay time.Duration
	switch policy.Backoff {
	case domain.BackoffFixed:
		delay = policy.InitialDelay
	case domain.BackoffLinear:
		delay = policy.InitialDelay * time.Duration(attemptIndex)
	case domain.BackoffExponential:
		delay = policy.InitialDelay * time.Duration(uint64(1)<<(attemptIndex-1))
	default:
		delay = policy.InitialDelay
	}

	if delay < 0 {
		delay = 0
	}
	if delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}
	return delay, true
}
