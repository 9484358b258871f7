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

	"github.com/paintdesk/paintdesk/internal/app"
	"github.com/paintdesk/paintdesk/internal/billing/clients"
	"github.com/paintdesk/paintdesk/internal/billing/estimates"
	"github.com/paintdesk/paintdesk/internal/billing/invoices"
	"github.com/paintdesk/paintdesk/internal/billing/payments"
	"github.com/paintdesk/paintdesk/internal/billing/reports"
	"github.com/paintdesk/paintdesk/internal/observability"
	"github.com/paintdesk/paintdesk/internal/platform/cache"
	"github.com/paintdesk/paintdesk/internal/platform/db"
	"github.com/paintdesk/paintdesk/internal/shared"
	"github.com/paintdesk/paintdesk/jobs"
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	// Audit events fan out through the queue; the worker persists them.
	auditEnqueuer := jobs.NewEnqueuer(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := auditEnqueuer.Close(); err != nil {
			logger.Warn("audit enqueuer close", slog.Any("error", err))
		}
	}()

	reportsRepo := reports.NewRepository(dbpool)
	reportsCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)
	reportsService := reports.NewService(reportsRepo, reportsCache)

	clientsRepo := clients.NewRepository(dbpool)
	clientsService := clients.NewService(clientsRepo)

	estimatesRepo := estimates.NewRepository(dbpool)
	estimatesService := estimates.NewService(estimatesRepo, clientsRepo, auditEnqueuer)

	invoicesRepo := invoices.NewRepository(dbpool)
	invoicesService := invoices.NewService(invoicesRepo, auditEnqueuer, reportsService)

	paymentsRepo := payments.NewRepository(dbpool)
	paymentsService := payments.NewService(paymentsRepo, invoicesRepo, idempotencyStore, auditEnqueuer, reportsService)

	metrics := observability.NewMetrics()

	clientsHandler := clients.NewHandler(clientsService, logger)
	estimatesHandler := estimates.NewHandler(estimatesService, logger, metrics)
	invoicesHandler := invoices.NewHandler(invoicesService, logger, metrics)
	paymentsHandler := payments.NewHandler(paymentsService, logger, metrics)
	reportsHandler := reports.NewHandler(reportsService, logger)

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
		ClientsHandler:   clientsHandler,
		EstimatesHandler: estimatesHandler,
		InvoicesHandler:  invoicesHandler,
		PaymentsHandler:  paymentsHandler,
		ReportsHandler:   reportsHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
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
