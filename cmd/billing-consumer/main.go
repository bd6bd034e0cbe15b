package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/magabrotheeeer/scan-gate/internal/app/billingconsumer"
	"github.com/magabrotheeeer/scan-gate/internal/config"
	"github.com/magabrotheeeer/scan-gate/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	logger := sl.SetupLogger(cfg.Env)

	logger.Info("starting billing-consumer", slog.String("env", cfg.Env), slog.String("queue", cfg.Queue))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := billingconsumer.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize billing consumer", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("billing consumer stopped with error", sl.Err(err))
		os.Exit(1)
	}

	logger.Info("billing-consumer stopped gracefully")
}
