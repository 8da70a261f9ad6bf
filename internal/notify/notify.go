// Package notify implements the Notifier/HookRunner: fanning a terminal
// execution outcome out to notification targets, and running the job's
// on_success/on_failure hook commands.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lunasched/lunasched/internal/domain"
	"github.com/lunasched/lunasched/internal/metrics"
	"github.com/lunasched/lunasched/internal/spawner"
)

// Target delivers one notification for an execution's terminal outcome to
// the given address.
type Target interface {
	Send(ctx context.Context, address string, exec *domain.Execution, job *domain.Job) error
}

// Notifier fans a terminal Execution out to every configured Target,
// choosing on_success or on_failure targets by exec.State.
type Notifier struct {
	targets map[string]Target // keyed by NotificationTarget.Kind
	logger  *slog.Logger
}

// New returns a Notifier dispatching to targets by kind ("email", "webhook", "log").
func New(targets map[string]Target, logger *slog.Logger) *Notifier {
	return &Notifier{targets: targets, logger: logger.With("component", "notifier")}
}

// Notify sends exec's outcome to every target job.Notifications names for
// that outcome. Failures are logged; a notification delivery failure never
// changes exec's recorded state (spec §4.4 step 6).
func (n *Notifier) Notify(ctx context.Context, exec *domain.Execution, job *domain.Job) {
	var targets []domain.NotificationTarget
	if exec.State == domain.StateSucceeded {
		targets = job.Notifications.OnSuccess
	} else {
		targets = job.Notifications.OnFailure
	}

	for _, t := range targets {
		target, ok := n.targets[t.Kind]
		if !ok {
			n.logger.WarnContext(ctx, "unknown notification target kind", "kind", t.Kind, "job", job.Name)
			continue
		}
		if err := target.Send(ctx, t.Address, exec, job); err != nil {
			n.logger.ErrorContext(ctx, "notification delivery failed",
				"kind", t.Kind, "address", t.Address, "job", job.Name, "error", err)
		}
	}
}

// HookRunner executes a job's on_success_cmd/on_failure_cmd. Hook failures
// are fire-and-forget: logged and counted, never altering the parent
// execution's terminal state (spec §4.4 step 6, Open Question #3).
type HookRunner struct {
	spawner *spawner.Spawner
	logger  *slog.Logger
}

// NewHookRunner returns a HookRunner that launches hooks via sp.
func NewHookRunner(sp *spawner.Spawner, logger *slog.Logger) *HookRunner {
	return &HookRunner{spawner: sp, logger: logger.With("component", "hook_runner")}
}

// Run fires job's matching hook command for exec's terminal state, if any.
func (h *HookRunner) Run(ctx context.Context, job *domain.Job, exec *domain.Execution) {
	var cmd *string
	switch exec.State {
	case domain.StateSucceeded:
		cmd = job.Hooks.OnSuccessCmd
	case domain.StateFailed, domain.StateTimedOut:
		cmd = job.Hooks.OnFailureCmd
	default:
		return
	}
	if cmd == nil || *cmd == "" {
		return
	}

	env := []string{
		fmt.Sprintf("LUNASCHED_JOB_NAME=%s", job.Name),
		fmt.Sprintf("LUNASCHED_EXECUTION_ID=%s", exec.ExecutionID),
		fmt.Sprintf("LUNASCHED_STATE=%s", exec.State),
	}
	result := h.spawner.Run(ctx, "/bin/sh", []string{"-c", *cmd}, domain.ResourceLimits{}, nil, env)
	if result.Err != nil || result.ExitCode != 0 {
		metrics.HookFailuresTotal.Inc()
		h.logger.ErrorContext(ctx, "hook command failed",
			"job", job.Name, "execution_id", exec.ExecutionID, "exit_code", result.ExitCode, "error", result.Err)
	}
}
