// Command replay re-times recorded market data onto a live feed. Securities are split
// evenly across the configured number of feed clients.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coachpo/chronicle/internal/app/bootstrap"
	"github.com/coachpo/chronicle/internal/domain/region"
	"github.com/coachpo/chronicle/internal/feed"
	"github.com/coachpo/chronicle/internal/infra/config"
	"github.com/coachpo/chronicle/internal/infra/persistence/sqlstore"
	"github.com/coachpo/chronicle/internal/observability"
	"github.com/coachpo/chronicle/internal/replay"
)

const (
	program                  = "replay"
	shutdownTimeout          = 30 * time.Second
	replayShutdownTimeout    = 10 * time.Second
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
	cfg, err := config.LoadReplay(configPath)
	if err != nil {
		return bootstrap.Fail("load configuration", err)
	}
	securities, err := config.LoadSecurities(cfg.Securities)
	if err != nil {
		return bootstrap.Fail("load securities", err)
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
	store, err := sqlstore.OpenHistoricalDataStore(ctx, cfg.Database.Options())
	if err != nil {
		return bootstrap.Fail("connect to historical data store", err)
	}

	engines, err := openEngines(ctx, cfg, securities, store, logger)
	if err != nil {
		_ = store.Close()
		return bootstrap.Fail("open feed clients", err)
	}
	logger.Info("replay running",
		observability.Field{Key: "securities", Value: len(securities)},
		observability.Field{Key: "clients", Value: len(engines)},
		observability.Field{Key: "start_time", Value: cfg.StartTime})

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, initiating graceful shutdown")
	case <-allDone(engines):
		logger.Info("replay complete")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	bootstrap.ShutdownStep(shutdownCtx, logger, "closing replay engines", replayShutdownTimeout, func(stepCtx context.Context) error {
		return bootstrap.WaitFor(stepCtx, func() { closeEngines(engines, logger) })
	})
	bootstrap.ShutdownStep(shutdownCtx, logger, "closing historical data store", storeShutdownTimeout, func(context.Context) error {
		return store.Close()
	})
	bootstrap.ShutdownStep(shutdownCtx, logger, "shutting down telemetry", telemetryShutdownTimeout, telemetryProvider.Shutdown)
	return nil
}

// openEngines opens one engine per security group. If any fails to open, the engines
// already opened are closed.
func openEngines(ctx context.Context, cfg config.ReplayConfig, securities []region.Security, source replay.DataSource, logger observability.Logger) ([]*replay.Engine, error) {
	groups := config.Partition(securities, cfg.ClientCount)
	engines := make([]*replay.Engine, 0, len(groups))
	for i, group := range groups {
		client, err := newFeedClient(cfg.Feed, logger)
		if err != nil {
			closeEngines(engines, logger)
			return nil, err
		}
		engine, err := replay.NewEngine(client, source, group, cfg.StartTime,
			replay.WithKinds(cfg.Kinds...),
			replay.WithChunkSize(cfg.ChunkSize),
			replay.WithSampling(cfg.Sampling),
			replay.WithLoadRetry(cfg.LoadAttempts),
			replay.WithLogger(logger))
		if err == nil {
			err = engine.Open(ctx)
		}
		if err != nil {
			closeEngines(engines, logger)
			return nil, fmt.Errorf("client %d: %w", i, err)
		}
		engines = append(engines, engine)
	}
	return engines, nil
}

func newFeedClient(cfg config.FeedConfig, logger observability.Logger) (feed.Client, error) {
	if cfg.URL == "" {
		logger.Info("no feed url configured; records are discarded")
		return &feed.NullClient{}, nil
	}
	return feed.NewWebSocketClient(feed.Options{
		URL:         cfg.URL,
		MaxRate:     cfg.MaxRate,
		DialTimeout: cfg.DialTimeout,
		Logger:      logger,
	})
}

func closeEngines(engines []*replay.Engine, logger observability.Logger) {
	var failures []error
	for _, engine := range engines {
		failures = append(failures, engine.Close())
		failures = append(failures, engine.Failures()...)
	}
	if err := errors.Join(failures...); err != nil {
		logger.Error("replay finished with failures", observability.Err(err))
	}
}

func allDone(engines []*replay.Engine) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		for _, engine := range engines {
			<-engine.Done()
		}
		close(done)
	}()
	return done
}
