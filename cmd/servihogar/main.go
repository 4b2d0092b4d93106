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

	"github.com/servihogar/servihogar/internal/app"
	"github.com/servihogar/servihogar/internal/directory"
	"github.com/servihogar/servihogar/internal/invoicing"
	"github.com/servihogar/servihogar/internal/ledger"
	"github.com/servihogar/servihogar/internal/observability"
	"github.com/servihogar/servihogar/internal/payments"
	"github.com/servihogar/servihogar/internal/platform/cache"
	"github.com/servihogar/servihogar/internal/platform/db"
	"github.com/servihogar/servihogar/internal/platform/httpx"
	"github.com/servihogar/servihogar/internal/referral"
	"github.com/servihogar/servihogar/internal/settings"
	"github.com/servihogar/servihogar/internal/shared"
	"github.com/servihogar/servihogar/internal/visits"
	"github.com/servihogar/servihogar/jobs"
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
	httpx.ExposeInternalErrors(!cfg.IsProduction())

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	settingsStore := settings.NewCachedStore(settings.NewRepository(pool), redisClient, cfg.SettingsCacheTTL)
	userDirectory := directory.NewRepository(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	engine := referral.NewEngine(settingsStore, userDirectory, logger)

	paymentsRepo := payments.NewRepository(pool)
	paymentsService := payments.NewService(paymentsRepo, engine, metrics, logger)
	paymentsHandler := payments.NewHandler(logger, paymentsService, idempotencyStore)

	visitsRepo := visits.NewRepository(pool)
	visitsService := visits.NewService(visitsRepo, logger)
	visitsHandler := visits.NewHandler(logger, visitsService)

	invoicingRepo := invoicing.NewRepository(pool)
	invoicingService := invoicing.NewService(invoicingRepo, metrics, logger)
	invoicingHandler := invoicing.NewHandler(logger, invoicingService, idempotencyStore)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, logger)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Metrics:          metrics,
		Pool:             pool,
		PaymentsHandler:  paymentsHandler,
		VisitsHandler:    visitsHandler,
		InvoicingHandler: invoicingHandler,
		LedgerHandler:    ledgerHandler,
		JobsHandler:      jobHandler,
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
