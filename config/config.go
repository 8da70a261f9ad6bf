package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Config is the daemon's full environment-sourced configuration, parsed via
// caarlos0/env and checked with go-playground/validator, exactly as the
// teacher's config.Load does.
type Config struct {
	Env string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`

	// LogPath is LUNASCHED_LOG (spec §6): empty means stdout.
	LogPath string `env:"LUNASCHED_LOG"`
	// DatabaseURL is LUNASCHED_DB (spec §6): a Postgres DSN. Empty selects
	// the in-memory store, used for local dev and tests.
	DatabaseURL string `env:"LUNASCHED_DB"`
	// SocketPath is LUNASCHED_SOCKET (spec §6), default per spec.
	SocketPath string `env:"LUNASCHED_SOCKET" envDefault:"/tmp/lunasched.sock"`

	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"required,oneof=debug info warn error"`

	// TickPeriod is how often the Scheduler evaluates every enabled job
	// (spec §4.3).
	TickPeriod time.Duration `env:"LUNASCHED_TICK_PERIOD" envDefault:"1s"`
	// SlackSeconds bounds how far back a restarted scheduler will look for
	// a missed fire (spec §9 Open Question 1). 0 selects the Scheduler's
	// 60s default; catch-up cannot be turned off through this setting.
	SlackSeconds int `env:"LUNASCHED_SLACK_SECONDS" envDefault:"60" validate:"min=0"`
	// WorkerPoolSize is the Dispatcher's fixed worker count (spec §4.4).
	WorkerPoolSize int `env:"LUNASCHED_WORKER_POOL_SIZE" envDefault:"64" validate:"min=1,max=4096"`
	// QueueCapacity bounds the Dispatcher's priority queue before
	// backpressure eviction kicks in (spec §4.4).
	QueueCapacity int `env:"LUNASCHED_QUEUE_CAPACITY" envDefault:"1024" validate:"min=1"`
	// StaleAfter is how long a Pending/Running execution survives past
	// daemon restart before the recovery pass marks it Failed (spec §4.7,
	// recommended default 5x longest job timeout, min 1h).
	StaleAfter time.Duration `env:"LUNASCHED_STALE_AFTER" envDefault:"1h"`

	// JWTSecret verifies control-socket bearer tokens; the HTTP mirror is
	// not authenticated. Empty disables auth entirely, for local dev.
	JWTSecret string `env:"LUNASCHED_JWT_SECRET"`

	ResendAPIKey string `env:"RESEND_API_KEY" validate:"required_if=Env production,required_if=Env staging"`
	ResendFrom   string `env:"RESEND_FROM" validate:"required_if=Env production,required_if=Env staging"`
}

// Load parses Config from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SlogLevel converts LogLevel to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
