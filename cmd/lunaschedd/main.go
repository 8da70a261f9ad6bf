// Command lunaschedd is the scheduling daemon: it owns the tick loop, the
// dispatcher worker pool, the control socket, and the read-only HTTP/metrics
// mirror. Grounded on the teacher's cmd/scheduler/main.go wiring idiom.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lunasched/lunasched/config"
	"github.com/lunasched/lunasched/internal/clock"
	"github.com/lunasched/lunasched/internal/control"
	"github.com/lunasched/lunasched/internal/dispatch"
	"github.com/lunasched/lunasched/internal/health"
	"github.com/lunasched/lunasched/internal/infrastructure/postgres"
	"github.com/lunasched/lunasched/internal/ledger"
	ctxlog "github.com/lunasched/lunasched/internal/log"
	"github.com/lunasched/lunasched/internal/metrics"
	"github.com/lunasched/lunasched/internal/notify"
	"github.com/lunasched/lunasched/internal/registry"
	"github.com/lunasched/lunasched/internal/repository"
	"github.com/lunasched/lunasched/internal/repository/memory"
	"github.com/lunasched/lunasched/internal/spawner"
	httptransport "github.com/lunasched/lunasched/internal/transport/http"
	"github.com/lunasched/lunasched/internal/transport/http/handler"
	"github.com/lunasched/lunasched/internal/usecase"
)

// Exit codes per spec §6: 0 clean shutdown, 1 config error, 2 store error,
// 3 control-socket bind failure. 64+ is reserved for future use.
const (
	exitOK          = 0
	exitConfigError = 1
	exitStoreError  = 2
	exitSocketError = 3
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("config: %v", err)
		os.Exit(exitConfigError)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register()

	jobs, execs, windowStore, pool, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("store init failed", "error", err)
		os.Exit(exitStoreError)
	}
	if pool != nil {
		defer pool.Close()
	}

	if err := dispatch.Recover(ctx, execs, time.Now(), cfg.StaleAfter, logger); err != nil {
		logger.Error("startup recovery failed", "error", err)
		os.Exit(exitStoreError)
	}

	clk := clock.Real{}
	reg := registry.New(0)
	sp := spawner.New(logger)
	hooks := notify.NewHookRunner(sp, logger)
	notifier := notify.New(notificationTargets(cfg, logger), logger)

	d := dispatch.NewDispatcher(execs, reg, sp, notifier, hooks, clk, logger, cfg.QueueCapacity, cfg.WorkerPoolSize)
	go d.Run(ctx)

	windowLedger := ledger.New(windowStore)
	sched := dispatch.NewScheduler(jobs, execs, windowLedger, reg, d, notifier, clk, logger, cfg.TickPeriod, time.Duration(cfg.SlackSeconds)*time.Second)
	go sched.Run(ctx)

	svc := usecase.NewService(jobs, execs, sched)

	controlSrv := control.NewServer(cfg.SocketPath, []byte(cfg.JWTSecret), svc, logger)
	controlErrCh := make(chan error, 1)
	go func() { controlErrCh <- controlSrv.Run(ctx) }()

	var checker *health.Checker
	if pool != nil {
		checker = health.NewChecker(pool, logger, prometheus.DefaultRegisterer)
	} else {
		checker = health.NewChecker(nil, logger, prometheus.DefaultRegisterer)
	}

	router := httptransport.NewRouter(handler.NewJobHandler(svc), handler.NewHealthHandler(checker))
	httpSrv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: router}
	go func() {
		logger.Info("http mirror started", "port", cfg.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http mirror", "error", err)
		}
	}()

	metricsSrv := metrics.NewServer(":" + cfg.MetricsPort)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-controlErrCh:
		if err != nil {
			logger.Error("control socket failed", "error", err)
			os.Exit(exitSocketError)
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http mirror shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("lunaschedd shut down")
	os.Exit(exitOK)
}

// openStores picks the Postgres or in-memory backends per cfg.DatabaseURL
// (spec §6: empty LUNASCHED_DB selects the in-memory store).
func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.JobStore, repository.ExecutionStore, ledger.Store, *pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("running with in-memory stores")
		return memory.NewJobStore(), memory.NewExecutionStore(), ledger.NewInMemoryStore(), nil, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, nil, err
	}
	logger.Info("db connected and migrated")
	return postgres.NewJobStore(pool), postgres.NewExecutionStore(pool), postgres.NewWindowStore(pool), pool, nil
}

func notificationTargets(cfg *config.Config, logger *slog.Logger) map[string]notify.Target {
	targets := map[string]notify.Target{
		"log":     notify.NewLogTarget(logger),
		"webhook": notify.NewWebhookTarget(),
	}
	if cfg.ResendAPIKey != "" {
		targets["email"] = notify.NewEmailTarget(cfg.ResendAPIKey, cfg.ResendFrom, logger)
	}
	return targets
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
