package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"conti/internal/cli"
	applog "conti/internal/log"
	"conti/internal/services"
	"conti/internal/worker"
)

// ledger-worker consumes ledger events and keeps each group's report sheet
// current.
func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), applog.ComponentWorker)
	logger.Info("Starting ledger-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for ledger-worker")
		os.Exit(1)
	}

	res := cli.InitBackend(context.Background(), logger, cfg)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Warn("Cleanup failed", "error", err)
		}
	}()
	b := res.Backend
	if b.Events == nil {
		logger.Error("AMQP client unavailable")
		os.Exit(1)
	}

	ledger := services.NewLedgerService(b.Deps(), cfg.SettleMaxRetries)
	reports := worker.NewReportWorker(ledger, b.Store, b.Reports)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	if cfg.ReportStartupSync {
		logger.Info("Performing startup sync check...")
		if err := reports.StartupSync(ctx); err != nil {
			// Not fatal: events will bring reports up to date.
			logger.Error("Failed startup sync check", "error", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Events.ConsumeWithReconnect(gctx, reports.HandleEvent) })
	g.Go(func() error { return cli.ServeMetrics(gctx, logger, cfg.MetricsAddr) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
