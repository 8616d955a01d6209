package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"conti/internal/cli"
	"conti/internal/core"
	applog "conti/internal/log"
	"conti/internal/services"
)

func main() {
	cli.LoadEnvFile()

	// Logs go to stderr so command output on stdout stays clean.
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), applog.ComponentCLI)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res := cli.InitBackend(ctx, logger, cfg)
	deps := res.Backend.Deps()
	a := &app{
		groups:    services.NewGroupService(deps),
		expenses:  services.NewExpenseService(deps),
		ledger:    services.NewLedgerService(deps, cfg.SettleMaxRetries),
		recurring: services.NewRecurringService(deps),
		out:       os.Stdout,
	}

	err := a.run(ctx, os.Args[1:])
	if cerr := res.Cleanup(); cerr != nil {
		logger.Warn("Cleanup failed", "error", cerr)
	}
	if err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "conti: %v\n", err)
		if kind := core.KindOf(err); kind != core.KindUnknown {
			fmt.Fprintf(os.Stderr, "kind: %s\n", kind)
		}
		os.Exit(1)
	}
}
