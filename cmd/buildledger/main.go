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

	"github.com/buildledger/buildledger/internal/api"
	"github.com/buildledger/buildledger/internal/app"
	"github.com/buildledger/buildledger/internal/auth"
	"github.com/buildledger/buildledger/internal/ledger/accounts"
	"github.com/buildledger/buildledger/internal/ledger/bills"
	"github.com/buildledger/buildledger/internal/ledger/deposits"
	"github.com/buildledger/buildledger/internal/ledger/journals"
	"github.com/buildledger/buildledger/internal/ledger/lots"
	"github.com/buildledger/buildledger/internal/ledger/periods"
	"github.com/buildledger/buildledger/internal/ledger/purchaseorders"
	"github.com/buildledger/buildledger/internal/ledger/recon"
	"github.com/buildledger/buildledger/internal/observability"
	"github.com/buildledger/buildledger/internal/platform/cache"
	"github.com/buildledger/buildledger/internal/platform/db"
	"github.com/buildledger/buildledger/internal/shared"
	"github.com/buildledger/buildledger/jobs"
)

func main() {
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

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo)

	accountRepo := accounts.NewRepository(pool)
	accountService := accounts.NewService(accountRepo, auditLogger)

	reconRepo := recon.NewRepository(pool)
	reconService := recon.NewService(reconRepo, auditLogger)

	periodRepo := periods.NewRepository(pool)
	periodService := periods.NewService(periodRepo, reconService, auditLogger)

	journalRepo := journals.NewRepository(pool)
	journalService := journals.NewService(journalRepo, auditLogger, periodService)

	billRepo := bills.NewRepository(pool)
	matchCache := purchaseorders.NewCache(redisClient, cfg.MatchCacheTTL)
	billService := bills.NewService(billRepo, accountRepo, periodService, auditLogger, matchCache, bills.ServiceConfig{
		APAccountCode: cfg.APAccountCode,
	})

	depositRepo := deposits.NewRepository(pool)
	depositService := deposits.NewService(depositRepo, accountRepo, periodService, auditLogger, deposits.ServiceConfig{
		EquityAccountCode: cfg.EquityAccountCode,
	})

	poRepo := purchaseorders.NewRepository(pool)
	poService := purchaseorders.NewService(poRepo, billRepo, matchCache, auditLogger)

	lotRepo := lots.NewRepository(pool)
	lotService := lots.NewService(lotRepo, auditLogger)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
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
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		AuthService:          authService,
		AccountHandler:       api.NewAccountHandler(logger, accountService),
		JournalHandler:       api.NewJournalHandler(logger, journalService),
		BillHandler:          api.NewBillHandler(logger, billService, idempotencyStore),
		DepositHandler:       api.NewDepositHandler(logger, depositService, idempotencyStore),
		PurchaseOrderHandler: api.NewPurchaseOrderHandler(logger, poService),
		ReconHandler:         api.NewReconHandler(logger, reconService),
		PeriodHandler:        api.NewPeriodHandler(logger, periodService),
		LotHandler:           api.NewLotHandler(logger, lotService),
		TokenHandler:         api.NewTokenHandler(logger, authService),
		JobHandler:           jobHandler,
		Metrics:              metrics,
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
