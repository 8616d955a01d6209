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

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), applog.ComponentRecurring)
	logger.Info("Starting recurring-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	res := cli.InitBackend(context.Background(), logger, cfg)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Warn("Cleanup failed", "error", err)
		}
	}()

	processor := services.NewRecurringService(res.Backend.Deps())
	w := worker.NewRecurringWorker(processor, cfg.RecurringInterval)

	logger.Info("Recurring expense processor configured",
		"interval", cfg.RecurringInterval,
		"store", cfg.DataBackend,
		"lock", cfg.LockBackend)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx) })
	g.Go(func() error { return cli.ServeMetrics(gctx, logger, cfg.MetricsAddr) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Recurring-worker stopped", "error", err)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Recurring-worker shutdown complete")
}
