package configimport_test

import (
	"testing"
	"time"

	"github.com/lunasched/lunasched/internal/configimport"
	"github.com/lunasched/lunasched/internal/domain"
)

const yamlDoc = `
jobs:
  - name: nightly-backup
    command: /usr/local/bin/backup.sh
    args: ["--full"]
    schedule: "at 02:00"
    timezone: "America/New_York"
    priority: high
    execution_mode: sequential
    retry_policy:
      max_attempts: 3
      backoff: exponential
      initial_delay: 30s
      max_delay: 10m
    resource_limits:
      timeout: 1h
      max_memory_mb: 512
    hooks:
      on_failure_cmd: "/usr/local/bin/page-oncall.sh"
    notifications:
      on_failure:
        - kind: email
          address: ops@example.com
    tags: ["backup", "critical-path"]
  - name: health-ping
    command: /bin/true
    schedule: "every 30s"
`

func TestParseYAML(t *testing.T) {
	jobs, err := configimport.ParseYAML([]byte(yamlDoc))
	if err != nil {
		t.Fatalf("parse yaml: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}

	backup := jobs[0]
	if backup.Name != "nightly-backup" {
		t.Fatalf("name = %q", backup.Name)
	}
	if backup.Priority != domain.PriorityHigh {
		t.Fatalf("priority = %v", backup.Priority)
	}
	if backup.ExecutionMode != domain.ModeSequential {
		t.Fatalf("execution_mode = %v", backup.ExecutionMode)
	}
	if backup.RetryPolicy.InitialDelay != 30*time.Second {
		t.Fatalf("initial_delay = %v", backup.RetryPolicy.InitialDelay)
	}
	if backup.RetryPolicy.MaxDelay != 10*time.Minute {
		t.Fatalf("max_delay = %v", backup.RetryPolicy.MaxDelay)
	}
	if backup.ResourceLimits.Timeout == nil || *backup.ResourceLimits.Timeout != time.Hour {
		t.Fatalf("timeout = %v", backup.ResourceLimits.Timeout)
	}
	if backup.Hooks.OnFailureCmd == nil || *backup.Hooks.OnFailureCmd != "/usr/local/bin/page-oncall.sh" {
		t.Fatalf("on_failure_cmd = %v", backup.Hooks.OnFailureCmd)
	}
	if len(backup.Notifications.OnFailure) != 1 || backup.Notifications.OnFailure[0].Address != "ops@example.com" {
		t.Fatalf("notifications.on_failure = %+v", backup.Notifications.OnFailure)
	}
	if !backup.Enabled {
		t.Fatal("expected enabled to default true")
	}

	ping := jobs[1]
	if ping.Timezone != "UTC" {
		t.Fatalf("expected default timezone UTC, got %q", ping.Timezone)
	}
	if ping.ExecutionMode != domain.ModeParallel {
		t.Fatalf("expected default execution mode parallel, got %v", ping.ExecutionMode)
	}
	if ping.Priority != domain.PriorityNormal {
		t.Fatalf("expected default priority normal, got %v", ping.Priority)
	}
}

const tomlDoc = `
[[jobs]]
name = "weekly-report"
command = "/usr/local/bin/report.sh"
schedule = "at mon 09:00"
timezone = "UTC"
`

func TestParseTOML(t *testing.T) {
	jobs, err := configimport.ParseTOML([]byte(tomlDoc))
	if err != nil {
		t.Fatalf("parse toml: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	if jobs[0].Name != "weekly-report" {
		t.Fatalf("name = %q", jobs[0].Name)
	}
}

func TestParseYAMLRejectsMalformedDuration(t *testing.T) {
	bad := `
jobs:
  - name: bad-job
    command: /bin/true
    schedule: "every 1m"
    retry_policy:
      initial_delay: "not-a-duration"
`
	if _, err := configimport.ParseYAML([]byte(bad)); err == nil {
		t.Fatal("expected an error for malformed duration")
	}
}
