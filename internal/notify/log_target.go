package notify

import (
	"context"
	"log/slog"

	"github.com/lunasched/lunasched/internal/domain"
)

// LogTarget just logs the outcome, matching the teacher's LogSender idiom
// for a notification channel that needs no external delivery.
type LogTarget struct {
	logger *slog.Logger
}

// NewLogTarget returns a LogTarget.
func NewLogTarget(logger *slog.Logger) *LogTarget {
	return &LogTarget{logger: logger.With("component", "notify.log")}
}

func (t *LogTarget) Send(ctx context.Context, address string, exec *domain.Execution, job *domain.Job) error {
	t.logger.InfoContext(ctx, "execution outcome",
		"address", address, "job", job.Name, "execution_id", exec.ExecutionID,
		"state", exec.State, "attempt", exec.Attempt)
	return nil
}
