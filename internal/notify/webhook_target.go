package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/lunasched/lunasched/internal/domain"
)

// WebhookTarget posts a terminal-outcome notification as a JSON body to
// address, reusing the teacher's Executor transport-pooling idiom.
type WebhookTarget struct {
	client *http.Client
}

// NewWebhookTarget returns a WebhookTarget with a pooled, TLS-hardened
// *http.Client matching the teacher's scheduler.Executor transport.
func NewWebhookTarget() *WebhookTarget {
	return &WebhookTarget{
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
		},
	}
}

type webhookPayload struct {
	JobName     string `json:"jobName"`
	ExecutionID string `json:"executionId"`
	State       string `json:"state"`
	Attempt     int    `json:"attempt"`
	Error       string `json:"error,omitempty"`
}

func (t *WebhookTarget) Send(ctx context.Context, address string, exec *domain.Execution, job *domain.Job) error {
	body, err := json.Marshal(webhookPayload{
		JobName:     job.Name,
		ExecutionID: exec.ExecutionID.String(),
		State:       string(exec.State),
		Attempt:     exec.Attempt,
		Error:       exec.Error,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, address, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("do webhook request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
