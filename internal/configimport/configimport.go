// Package configimport decodes a bulk job-definition document (YAML or
// TOML) into domain.Job values for Service.ImportConfig (spec §6
// "Configuration import"). Both decoders are configured permissively:
// unknown fields are accepted rather than rejected, since an operator's
// config file commonly carries fields a newer/older daemon version doesn't
// recognize yet.
package configimport

import (
	"fmt"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/lunasched/lunasched/internal/domain"
)

// retryPolicyDoc mirrors domain.RetryPolicy with document-friendly field
// names and duration strings ("30s", "5m") instead of time.Duration's raw
// nanosecond integer encoding.
type retryPolicyDoc struct {
	MaxAttempts  uint32 `yaml:"max_attempts" toml:"max_attempts"`
	Backoff      string `yaml:"backoff" toml:"backoff"`
	InitialDelay string `yaml:"initial_delay" toml:"initial_delay"`
	MaxDelay     string `yaml:"max_delay" toml:"max_delay"`
}

type resourceLimitsDoc struct {
	Timeout     string   `yaml:"timeout" toml:"timeout"`
	MaxMemoryMB *float64 `yaml:"max_memory_mb" toml:"max_memory_mb"`
	CPUQuota    *float64 `yaml:"cpu_quota" toml:"cpu_quota"`
}

type hooksDoc struct {
	OnSuccessCmd string `yaml:"on_success_cmd" toml:"on_success_cmd"`
	OnFailureCmd string `yaml:"on_failure_cmd" toml:"on_failure_cmd"`
}

type notificationTargetDoc struct {
	Kind    string `yaml:"kind" toml:"kind"`
	Address string `yaml:"address" toml:"address"`
}

type notificationsDoc struct {
	OnSuccess []notificationTargetDoc `yaml:"on_success" toml:"on_success"`
	OnFailure []notificationTargetDoc `yaml:"on_failure" toml:"on_failure"`
}

type jobDoc struct {
	Name          string            `yaml:"name" toml:"name"`
	Command       string            `yaml:"command" toml:"command"`
	Args          []string          `yaml:"args" toml:"args"`
	RunAsUser     string            `yaml:"run_as_user" toml:"run_as_user"`
	Schedule      string            `yaml:"schedule" toml:"schedule"`
	Timezone      string            `yaml:"timezone" toml:"timezone"`
	Enabled       *bool             `yaml:"enabled" toml:"enabled"`
	Priority      string            `yaml:"priority" toml:"priority"`
	ExecutionMode string            `yaml:"execution_mode" toml:"execution_mode"`
	JitterSeconds uint32            `yaml:"jitter_seconds" toml:"jitter_seconds"`
	RetryPolicy   retryPolicyDoc    `yaml:"retry_policy" toml:"retry_policy"`
	ResourceLimits resourceLimitsDoc `yaml:"resource_limits" toml:"resource_limits"`
	Hooks         hooksDoc          `yaml:"hooks" toml:"hooks"`
	Notifications notificationsDoc  `yaml:"notifications" toml:"notifications"`
	Dependencies  []string          `yaml:"dependencies" toml:"dependencies"`
	Tags          []string          `yaml:"tags" toml:"tags"`
}

// document is the top-level shape: a sequence of jobs, per spec §6.
type document struct {
	Jobs []jobDoc `yaml:"jobs" toml:"jobs"`
}

// ParseYAML decodes a YAML document into domain.Job values.
func ParseYAML(data []byte) ([]*domain.Job, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return toDomainJobs(doc)
}

// ParseTOML decodes a TOML document into domain.Job values.
func ParseTOML(data []byte) ([]*domain.Job, error) {
	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse toml: %w", err)
	}
	return toDomainJobs(doc)
}

func toDomainJobs(doc document) ([]*domain.Job, error) {
	jobs := make([]*domain.Job, 0, len(doc.Jobs))
	for _, d := range doc.Jobs {
		job, err := toDomainJob(d)
		if err != nil {
			return nil, fmt.Errorf("job %q: %w", d.Name, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func toDomainJob(d jobDoc) (*domain.Job, error) {
	initialDelay, err := parseDurationOrZero(d.RetryPolicy.InitialDelay)
	if err != nil {
		return nil, fmt.Errorf("retry_policy.initial_delay: %w", err)
	}
	maxDelay, err := parseDurationOrZero(d.RetryPolicy.MaxDelay)
	if err != nil {
		return nil, fmt.Errorf("retry_policy.max_delay: %w", err)
	}

	var limits domain.ResourceLimits
	if d.ResourceLimits.Timeout != "" {
		timeout, err := time.ParseDuration(d.ResourceLimits.Timeout)
		if err != nil {
			return nil, fmt.Errorf("resource_limits.timeout: %w", err)
		}
		limits.Timeout = &timeout
	}
	limits.MaxMemoryMB = d.ResourceLimits.MaxMemoryMB
	limits.CPUQuota = d.ResourceLimits.CPUQuota

	var runAsUser *string
	if d.RunAsUser != "" {
		runAsUser = &d.RunAsUser
	}

	enabled := true
	if d.Enabled != nil {
		enabled = *d.Enabled
	}

	var hooks domain.Hooks
	if d.Hooks.OnSuccessCmd != "" {
		hooks.OnSuccessCmd = &d.Hooks.OnSuccessCmd
	}
	if d.Hooks.OnFailureCmd != "" {
		hooks.OnFailureCmd = &d.Hooks.OnFailureCmd
	}

	job := &domain.Job{
		Name:          d.Name,
		Command:       d.Command,
		Args:          d.Args,
		RunAsUser:     runAsUser,
		Schedule:      d.Schedule,
		Timezone:      timezoneOrUTC(d.Timezone),
		Enabled:       enabled,
		Priority:      parsePriority(d.Priority),
		ExecutionMode: parseExecutionMode(d.ExecutionMode),
		JitterSeconds: d.JitterSeconds,
		RetryPolicy: domain.RetryPolicy{
			MaxAttempts:  d.RetryPolicy.MaxAttempts,
			Backoff:      parseBackoff(d.RetryPolicy.Backoff),
			InitialDelay: initialDelay,
			MaxDelay:     maxDelay,
		},
		ResourceLimits: limits,
		Hooks:          hooks,
		Notifications: domain.NotificationConfig{
			OnSuccess: toTargets(d.Notifications.OnSuccess),
			OnFailure: toTargets(d.Notifications.OnFailure),
		},
		Dependencies: d.Dependencies,
		Tags:         d.Tags,
	}
	return job, nil
}

func toTargets(docs []notificationTargetDoc) []domain.NotificationTarget {
	if len(docs) == 0 {
		return nil
	}
	targets := make([]domain.NotificationTarget, len(docs))
	for i, t := range docs {
		targets[i] = domain.NotificationTarget{Kind: t.Kind, Address: t.Address}
	}
	return targets
}

func parseDurationOrZero(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func timezoneOrUTC(s string) string {
	if s == "" {
		return "UTC"
	}
	return s
}

func parsePriority(s string) domain.Priority {
	switch s {
	case "low":
		return domain.PriorityLow
	case "high":
		return domain.PriorityHigh
	case "critical":
		return domain.PriorityCritical
	default:
		return domain.PriorityNormal
	}
}

func parseExecutionMode(s string) domain.ExecutionMode {
	switch domain.ExecutionMode(s) {
	case domain.ModeSequential, domain.ModeExclusive:
		return domain.ExecutionMode(s)
	default:
		return domain.ModeParallel
	}
}

func parseBackoff(s string) domain.Backoff {
	switch domain.Backoff(s) {
	case domain.BackoffLinear, domain.BackoffExponential:
		return domain.Backoff(s)
	default:
		return domain.BackoffFixed
	}
}
