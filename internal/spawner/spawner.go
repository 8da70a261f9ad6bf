// Package spawner implements the Spawner: launches a job's command with
// resource limits, captures output, and enforces the wall-clock timeout.
package spawner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"os/user"
	"strconv"
	"syscall"
	"time"

	"github.com/lunasched/lunasched/internal/domain"
)

// ErrSpawnFailed wraps failures to exec the command at all (bad binary,
// permission denied, unknown run_as_user) — distinct from the process
// itself exiting nonzero.
var ErrSpawnFailed = errors.New("spawner: failed to start process")

// defaultGrace is the SIGTERM-to-SIGKILL grace period (spec §5).
const defaultGrace = 10 * time.Second

// Result is the outcome of one Run call.
type Result struct {
	ExitCode    int
	SpawnFailed bool
	TimedOut    bool
	Stdout      string
	Stderr      string
	Duration    time.Duration
	Err         error
}

// Spawner runs a command to completion, honoring a wall-clock timeout and
// an optional run-as-user, returning captured output and exit status.
type Spawner struct {
	logger *slog.Logger
	grace  time.Duration
}

// New returns a Spawner that logs through logger.
func New(logger *slog.Logger) *Spawner {
	return &Spawner{logger: logger.With("component", "spawner"), grace: defaultGrace}
}

// Run executes cmd with args, honoring limits.Timeout if set, running as
// runAsUser if non-nil, with env appended to the child's environment.
func (s *Spawner) Run(ctx context.Context, command string, args []string, limits domain.ResourceLimits, runAsUser *string, env []string) Result {
	start := time.Now()

	if limits.Timeout != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *limits.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Env = append(cmd.Environ(), env...)
	cmd.WaitDelay = s.grace
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		// Negative pid targets the whole process group (setpgid below),
		// so a job's own children are also signalled on timeout.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if runAsUser != nil {
		cred, err := credentialFor(*runAsUser)
		if err != nil {
			return Result{
				ExitCode:    -1,
				SpawnFailed: true,
				Duration:    time.Since(start),
				Err:         fmt.Errorf("%w: resolve run_as_user %q: %v", ErrSpawnFailed, *runAsUser, err),
			}
		}
		cmd.SysProcAttr = &syscall.SysProcAttr{Credential: cred}
	}
	cmd.SysProcAttr = setpgid(cmd.SysProcAttr)

	s.logger.InfoContext(ctx, "spawning process", "command", command, "args", args)

	err := cmd.Run()
	duration := time.Since(start)

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result := Result{
				ExitCode: exitErr.ExitCode(),
				Stdout:   domain.CapOutput(stdout.String()),
				Stderr:   domain.CapOutput(stderr.String()),
				Duration: duration,
			}
			if ctx.Err() == context.DeadlineExceeded {
				result.TimedOut = true
			}
			s.logger.WarnContext(ctx, "process exited nonzero",
				"command", command, "exit_code", result.ExitCode, "timed_out", result.TimedOut)
			return result
		}

		s.logger.ErrorContext(ctx, "process failed to start", "command", command, "error", err)
		return Result{
			ExitCode:    -1,
			SpawnFailed: true,
			Duration:    duration,
			Err:         fmt.Errorf("%w: %v", ErrSpawnFailed, err),
		}
	}

	s.logger.InfoContext(ctx, "process exited", "command", command, "duration", duration)
	return Result{
		ExitCode: 0,
		Stdout:   domain.CapOutput(stdout.String()),
		Stderr:   domain.CapOutput(stderr.String()),
		Duration: duration,
	}
}

// setpgid puts the child in its own process group so a timeout kill signal
// reaches any further children the job itself spawns.
func setpgid(attr *syscall.SysProcAttr) *syscall.SysProcAttr {
	if attr == nil {
		attr = &syscall.SysProcAttr{}
	}
	attr.Setpgid = true
	return attr
}

// credentialFor resolves a run_as_user name to a syscall.Credential.
func credentialFor(name string) (*syscall.Credential, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return nil, err
	}
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return nil, err
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return nil, err
	}
	return &syscall.Credential{Uid: uint32(uid), Gid: uint32(gid)}, nil
}
