package main

import (
	"context"
	"errors"
	"os"
	"time"

	"replenishment/internal/cli"
	"replenishment/internal/drafts"
	"replenishment/internal/log"
	"replenishment/internal/scheduler"
	"replenishment/internal/services"
	"replenishment/internal/soa"
	"replenishment/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting replenishment-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the export worker")
		os.Exit(1)
	}

	res := cli.InitBackend(context.Background(), logger, cfg)
	defer func() {
		if err := res.Close(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	}()
	if res.AMQP == nil {
		logger.Error("AMQP broker unreachable, worker cannot consume scale saved messages")
		os.Exit(1)
	}
	if res.Exporter == nil {
		logger.Warn("Sheet export disabled, saved scales will only be acknowledged")
	}

	opts := soa.Options{
		InflationThreshold: cfg.InflationThreshold,
		ReserveCurrencies:  cfg.ReserveCurrencies,
	}
	processor := services.NewExportProcessor(res.Backend, res.Exporter, opts, services.ExportProcessorConfig{
		BatchSize:  cfg.ExportBatchSize,
		MaxRetries: cfg.ExportMaxRetries,
	})
	exportWorker := worker.NewExportWorker(processor)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	// On startup, export any period saved while the worker was down.
	logger.Info("Performing startup export check...")
	if err := exportWorker.StartupExportCheck(ctx); err != nil {
		logger.Error("Failed startup export check", "error", err)
	}

	sched := scheduler.New(ctx, logger.WithComponent(log.ComponentScheduler).Logger)
	if err := sched.Every(cfg.ExportInterval, scheduler.NewExportSweepJob(processor)); err != nil {
		logger.Error("Failed to schedule export sweep", "error", err)
		os.Exit(1)
	}
	if err := sched.Every(cfg.DraftPurgeInterval, scheduler.NewDraftPurgeJob(drafts.NewManager(res.Backend), cfg.DraftMaxAge)); err != nil {
		logger.Error("Failed to schedule draft purge", "error", err)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	consumeErr := make(chan error, 1)
	go func() {
		consumeErr <- res.AMQP.ConsumeScaleSaved(ctx, exportWorker.HandleScaleSaved)
	}()

	select {
	case err := <-consumeErr:
		if ctx.Err() == nil {
			logger.Error("Message consumption stopped", "error", err)
			os.Exit(1)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", "error", err)
		}
	case <-ctx.Done():
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
