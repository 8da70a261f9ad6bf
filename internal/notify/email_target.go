package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"

	"github.com/lunasched/lunasched/internal/domain"
)

// EmailTarget delivers terminal-outcome notifications over email via the
// Resend API, mirroring the teacher's email.Sender split between a
// LogSender (local dev) and a ResendSender (staging/production).
type EmailTarget struct {
	client *resend.Client
	from   string
	local  bool
	logger *slog.Logger
}

// NewEmailTarget returns an EmailTarget. When apiKey is empty it behaves
// like the teacher's LogSender: it logs the would-be email instead of
// calling the Resend API, for local dev without a configured API key.
func NewEmailTarget(apiKey, from string, logger *slog.Logger) *EmailTarget {
	t := &EmailTarget{from: from, logger: logger.With("component", "notify.email")}
	if apiKey == "" {
		t.local = true
		return t
	}
	t.client = resend.NewClient(apiKey)
	return t
}

func (t *EmailTarget) Send(ctx context.Context, address string, exec *domain.Execution, job *domain.Job) error {
	subject := fmt.Sprintf("lunasched: %s %s", job.Name, exec.State)
	body := fmt.Sprintf(
		"<p>Job <b>%s</b> execution <code>%s</code> finished in state <b>%s</b> (attempt %d).</p><pre>%s</pre>",
		job.Name, exec.ExecutionID, exec.State, exec.Attempt, exec.Error,
	)

	if t.local {
		t.logger.InfoContext(ctx, "execution outcome email (local dev)",
			"to", address, "job", job.Name, "execution_id", exec.ExecutionID, "subject", subject)
		return nil
	}

	params := &resend.SendEmailRequest{
		From:    t.from,
		To:      []string{address},
		Subject: subject,
		Html:    body,
	}
	_, err := t.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
