package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/kitworth/kitworth/internal/app"
	"github.com/kitworth/kitworth/internal/platform/cache"
	"github.com/kitworth/kitworth/internal/platform/db"
	"github.com/kitworth/kitworth/internal/pricing"
	pricinghttp "github.com/kitworth/kitworth/internal/pricing/http"
	"github.com/kitworth/kitworth/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// NewCache tolerates a nil client; version bumps become no-ops.
		logger.Warn("redis unavailable, cache bumps disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	pricingRepo := pricing.NewRepository(pool)
	pricingService := pricing.NewService(pricingRepo, logger)
	reportCache := pricinghttp.NewCache(redisClient, cfg.CacheTTL)

	recalcHandler := jobs.NewRecalculateHandler(pricingService, reportCache, logger)

	var cron []jobs.CronRegistration
	if cfg.RecalcCron != "" {
		nightlyTask, err := jobs.NewRecalculateTask("scheduled", time.Now().UTC())
		if err != nil {
			logger.Error("build recalc task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{
			Spec:    cfg.RecalcCron,
			Task:    nightlyTask,
			Options: []asynq.Option{asynq.MaxRetry(3)},
		})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPricingRecalculate, Handler: recalcHandler},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
