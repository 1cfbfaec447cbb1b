package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/prok20/faulty-server-poller/internal/api"
	"github.com/prok20/faulty-server-poller/internal/config"
	"github.com/prok20/faulty-server-poller/internal/logger"
	"github.com/prok20/faulty-server-poller/internal/metrics"
	"github.com/prok20/faulty-server-poller/internal/pool"
	"github.com/prok20/faulty-server-poller/internal/run"
	"github.com/prok20/faulty-server-poller/internal/service"
	"github.com/prok20/faulty-server-poller/internal/store/memory"
	"github.com/prok20/faulty-server-poller/internal/store/postgres"
	"github.com/prok20/faulty-server-poller/internal/tracing"
	"github.com/prok20/faulty-server-poller/internal/upstream"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the polling API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.NewLoader().Load(cmd.Flags())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg)
		},
	}
	config.RegisterFlags(cmd)
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.New(cfg.Log.Level, string(cfg.Log.Format))
	slog.SetDefault(log)

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer shutdownWith(log, "tracing", tp.Shutdown)

	metricsHandler, instruments, metricsShutdown, err := metrics.InitPrometheus()
	if err != nil {
		return err
	}
	defer shutdownWith(log, "metrics", metricsShutdown)

	store, closeStore, err := openStore(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer closeStore()

	polling := cfg.Polling.Normalized()
	requester, err := upstream.NewRequester(
		upstream.NewClient(polling.RequestTimeout),
		polling.PollingAddress,
		tp.ShouldPropagate(),
	)
	if err != nil {
		return err
	}

	workers := pool.New(pool.Options{
		MaxPendingRuns:           polling.MaxPendingRuns,
		MaxConcurrentRuns:        polling.MaxConcurrentRuns,
		ConcurrentRequestsPerRun: polling.ConcurrentRequestsPerRun,
		RatePerRun:               polling.RatePerRun,
		Upstream:                 requester,
		Store:                    store,
		Logger:                   log,
		Tracer:                   tp.Tracer(),
		Instruments:              instruments,
	})

	svc := service.New(store, workers, log, instruments)
	server := api.New(cfg.Application.Address(), svc, metricsHandler, log)

	log.Info("poller starting",
		"address", cfg.Application.Address(),
		"environment", cfg.Environment,
		"store", string(cfg.Database.Driver),
		"polling_address", polling.PollingAddress,
		"max_concurrent_runs", polling.MaxConcurrentRuns,
		"max_pending_runs", polling.MaxPendingRuns,
		"concurrent_requests_per_run", polling.ConcurrentRequestsPerRun,
	)

	serveErr := server.Run(ctx)

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := workers.Shutdown(drainCtx); err != nil {
		log.Warn("worker pool did not drain; unfinished runs stay in progress", "error", err)
	}
	log.Info("poller stopped")
	return serveErr
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (run.Store, func(), error) {
	switch cfg.Driver {
	case config.StoreDriverMemory:
		log.Warn("using in-memory run store; runs are lost on restart")
		return memory.New(), func() {}, nil
	case config.StoreDriverPostgres:
		db, err := postgres.Open(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if cfg.Migrate {
			if err := postgres.Migrate(db); err != nil {
				_ = db.Close()
				return nil, nil, err
			}
			log.Info("database migrations applied")
		}
		return postgres.New(db), closeDB(db, log), nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

func closeDB(db *sql.DB, log *slog.Logger) func() {
	return func() {
		if err := db.Close(); err != nil {
			log.Error("failed to close database", "error", err)
		}
	}
}

func shutdownWith(log *slog.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("shutdown failed", "component", name, "error", err)
	}
}
