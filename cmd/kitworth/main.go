package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/kitworth/kitworth/cmd/kitworth/cli"
	"github.com/kitworth/kitworth/internal/app"
	"github.com/kitworth/kitworth/internal/catalog"
	"github.com/kitworth/kitworth/internal/platform/cache"
	"github.com/kitworth/kitworth/internal/platform/db"
	"github.com/kitworth/kitworth/internal/pricing"
	pricinghttp "github.com/kitworth/kitworth/internal/pricing/http"
	"github.com/kitworth/kitworth/internal/pricing/report"
	"github.com/kitworth/kitworth/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	pricingRepo := pricing.NewRepository(dbpool)
	pricingService := pricing.NewService(pricingRepo, logger)

	if len(os.Args) > 1 && os.Args[1] == "recalc" {
		opts, err := cli.ParseRecalcFlags(os.Args[2:])
		if err != nil {
			os.Exit(1)
		}
		os.Exit(cli.NewRecalcCLI(pricingService).RecalcCommand(ctx, opts))
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// NewCache tolerates a nil client; reports are then built per request.
		logger.Warn("redis unavailable, reports served uncached", slog.Any("error", err))
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

	catalogRepo := catalog.NewRepository(dbpool)
	catalogService := catalog.NewService(catalogRepo, logger)
	catalogHandler := catalog.NewHandler(catalogService, logger)

	reportRepo := report.NewRepository(dbpool)
	reportService := report.NewService(reportRepo, logger)

	reportCache := pricinghttp.NewCache(redisClient, cfg.CacheTTL)
	if err := reportCache.ListenForInvalidation(ctx, ""); err != nil {
		logger.Warn("cache invalidation listener", slog.Any("error", err))
	}

	queueClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()

	pricingHandler := pricinghttp.NewHandler(reportService, pricingService, queueClient, reportCache, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		CatalogHandler: catalogHandler,
		PricingHandler: pricingHandler,
		JobHandler:     jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
