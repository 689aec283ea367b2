// Command riskserver loads account inventories, resolves risk limits per region and
// persists inventory snapshots until it is signalled to stop.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/coachpo/chronicle/internal/app/bootstrap"
	"github.com/coachpo/chronicle/internal/infra/config"
	"github.com/coachpo/chronicle/internal/infra/persistence/migrations"
	"github.com/coachpo/chronicle/internal/infra/persistence/sqlstore"
	"github.com/coachpo/chronicle/internal/observability"
	"github.com/coachpo/chronicle/internal/risk"
)

const (
	program                  = "riskserver"
	shutdownTimeout          = 30 * time.Second
	lifecycleShutdownTimeout = 10 * time.Second
	storeShutdownTimeout     = 5 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		bootstrap.Exit(program, err)
	}
}

func run(args []string) error {
	configPath, err := bootstrap.ParseConfigFlag(program, args)
	if err != nil {
		return bootstrap.Fail("parse flags", err)
	}
	cfg, err := config.LoadRiskServer(configPath)
	if err != nil {
		return bootstrap.Fail("load configuration", err)
	}
	logger, err := bootstrap.InitLogging(cfg.Logging)
	if err != nil {
		return bootstrap.Fail("initialize logging", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	telemetryProvider, err := bootstrap.InitTelemetry(ctx, cfg.Telemetry, logger)
	if err != nil {
		return bootstrap.Fail("initialize telemetry", err)
	}
	logger.Info("configuration loaded",
		observability.Field{Key: "environment", Value: string(cfg.Environment)},
		observability.Field{Key: "service_locator", Value: cfg.ServiceLocator.Address},
		observability.Field{Key: "accounts", Value: len(cfg.Risk.Accounts)})

	if cfg.Database.RunMigrations {
		if err := migrations.Apply(ctx, cfg.Database.DSN, "", logger); err != nil {
			return bootstrap.Fail("apply migrations", err)
		}
	}
	store, err := sqlstore.OpenRiskDataStore(ctx, cfg.Database.Options())
	if err != nil {
		return bootstrap.Fail("connect to risk data store", err)
	}
	params, err := cfg.Risk.Parameters.Build()
	if err != nil {
		_ = store.Close()
		return bootstrap.Fail("build risk parameters", err)
	}
	service, err := risk.NewService(store, params,
		risk.WithPersistInterval(cfg.Risk.PersistInterval),
		risk.WithLogger(logger))
	if err != nil {
		_ = store.Close()
		return bootstrap.Fail("initialize risk service", err)
	}
	if err := service.Load(ctx, cfg.Risk.AccountIDs()...); err != nil {
		_ = store.Close()
		return bootstrap.Fail("load inventory snapshots", err)
	}

	var lifecycle conc.WaitGroup
	lifecycle.Go(func() {
		if err := service.Run(ctx); err != nil {
			logger.Error("risk service stopped", observability.Err(err))
		}
	})
	lifecycle.Go(func() { monitor(ctx, service, cfg.Risk, logger) })

	logger.Info("risk server started; awaiting shutdown signal")
	<-ctx.Done()
	logger.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	start := time.Now()
	bootstrap.ShutdownStep(shutdownCtx, logger, "waiting for lifecycle goroutines", lifecycleShutdownTimeout, func(stepCtx context.Context) error {
		return bootstrap.WaitFor(stepCtx, lifecycle.Wait)
	})
	bootstrap.ShutdownStep(shutdownCtx, logger, "closing risk data store", storeShutdownTimeout, func(context.Context) error {
		return store.Close()
	})
	bootstrap.ShutdownStep(shutdownCtx, logger, "shutting down telemetry", telemetryShutdownTimeout, telemetryProvider.Shutdown)
	logger.Info("shutdown completed", observability.Field{Key: "elapsed", Value: time.Since(start)})
	return nil
}

// monitor evaluates every account once per persist interval and logs the accounts held
// out of the active state.
func monitor(ctx context.Context, service *risk.Service, cfg config.RiskConfig, logger observability.Logger) {
	ticker := time.NewTicker(cfg.PersistInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, account := range cfg.AccountIDs() {
				eval := service.Evaluate(account)
				if eval.Status == risk.StatusActive {
					continue
				}
				logger.Info("account restricted",
					observability.Account(account),
					observability.Field{Key: "status", Value: eval.Status.String()},
					observability.Field{Key: "breaches", Value: len(eval.Breaches)})
			}
		}
	}
}
