package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"replenishment/internal/cli"
	"replenishment/internal/config"
	"replenishment/internal/drafts"
	apphttp "replenishment/internal/http"
	"replenishment/internal/log"
	"replenishment/internal/middleware/ratelimit"
	"replenishment/internal/scheduler"
	"replenishment/internal/services"
	"replenishment/internal/soa"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	res := cli.InitBackend(context.Background(), logger, cfg)
	defer func() {
		if err := res.Close(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	}()

	opts := ruleOptions(cfg)
	draftManager := drafts.NewManager(res.Backend)
	scale := services.NewScaleService(res.Backend, draftManager, res.Publisher(), opts)

	rl := ratelimit.DefaultConfig()
	rl.RequestsPerMinute = cfg.RateLimitRPM
	srv := apphttp.NewServer(apphttp.ServerConfig{
		Addr:           ":" + cfg.Port,
		CORSOrigins:    cfg.CORSOrigins,
		RequestTimeout: cfg.RequestTimeout,
		RateLimit:      rl,
		Logger:         logger,
	}, scale, res.Backend)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	})

	sched := scheduler.New(ctx, logger.WithComponent(log.ComponentScheduler).Logger)
	if err := sched.Every(cfg.DraftPurgeInterval, scheduler.NewDraftPurgeJob(draftManager, cfg.DraftMaxAge)); err != nil {
		logger.Error("Failed to schedule draft purge", "error", err)
		os.Exit(1)
	}
	// Without a broker nobody else exports saved scales, so sweep in-process.
	if res.Exporter != nil && res.AMQP == nil {
		processor := services.NewExportProcessor(res.Backend, res.Exporter, opts, services.ExportProcessorConfig{
			BatchSize:  cfg.ExportBatchSize,
			MaxRetries: cfg.ExportMaxRetries,
		})
		if err := sched.Every(cfg.ExportInterval, scheduler.NewExportSweepJob(processor)); err != nil {
			logger.Error("Failed to schedule export sweep", "error", err)
			os.Exit(1)
		}
	}
	sched.Start()
	defer sched.Stop()

	logger.Info("Starting replenishment server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp_enabled", res.AMQP != nil,
		"export_enabled", res.Exporter != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

func ruleOptions(cfg *config.Config) soa.Options {
	return soa.Options{
		InflationThreshold: cfg.InflationThreshold,
		ReserveCurrencies:  cfg.ReserveCurrencies,
	}
}
