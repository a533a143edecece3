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
	"github.com/redis/go-redis/v9"

	"github.com/bi-platform/bi-ledger/internal/app"
	"github.com/bi-platform/bi-ledger/internal/inventory"
	"github.com/bi-platform/bi-ledger/internal/ledger/accounts"
	"github.com/bi-platform/bi-ledger/internal/ledger/journals"
	"github.com/bi-platform/bi-ledger/internal/ledger/periodlock"
	"github.com/bi-platform/bi-ledger/internal/observability"
	"github.com/bi-platform/bi-ledger/internal/platform/cache"
	"github.com/bi-platform/bi-ledger/internal/platform/db"
	"github.com/bi-platform/bi-ledger/internal/purchasing"
	"github.com/bi-platform/bi-ledger/internal/sales"
	"github.com/bi-platform/bi-ledger/internal/shared"
	"github.com/bi-platform/bi-ledger/internal/vouchers"
	"github.com/bi-platform/bi-ledger/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	metrics := observability.NewMetrics()

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	accountsRepo := accounts.NewRepository(pool)
	accountsService := accounts.NewService(accountsRepo)
	accountsHandler := accounts.NewHandler(logger, accountsService)

	journalsRepo := journals.NewRepository(pool)
	journalsService := journals.NewService(journalsRepo, auditLogger, metrics)
	journalsHandler := journals.NewHandler(logger, journalsService)

	periodLockService := periodlock.NewService(pool)
	periodLockHandler := periodlock.NewHandler(logger, periodLockService)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryHandler := inventory.NewHandler(logger, inventoryRepo)

	salesRepo := sales.NewRepository(pool)
	salesService := sales.NewService(salesRepo, auditLogger)
	salesHandler := sales.NewHandler(logger, salesService)

	purchasingRepo := purchasing.NewRepository(pool)
	purchasingService := purchasing.NewService(purchasingRepo, auditLogger, jobClient, logger)
	purchasingService.WithCache(cache.New(redisClient, cfg.StatsCacheTTL))
	purchasingHandler := purchasing.NewHandler(logger, purchasingService)

	vouchersRepo := vouchers.NewRepository(pool)
	vouchersService := vouchers.NewService(vouchersRepo, auditLogger)
	vouchersHandler := vouchers.NewHandler(logger, vouchersService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		AccountsHandler:   accountsHandler,
		JournalsHandler:   journalsHandler,
		PeriodLockHandler: periodLockHandler,
		SalesHandler:      salesHandler,
		PurchasingHandler: purchasingHandler,
		VouchersHandler:   vouchersHandler,
		InventoryHandler:  inventoryHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
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
