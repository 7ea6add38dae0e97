package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tutoring-payment-service/internal/config"
	payAdapters "tutoring-payment-service/internal/infra/adapters/payment"
	pg "tutoring-payment-service/internal/infra/db/postgres"
	"tutoring-payment-service/internal/infra/logging"
	"tutoring-payment-service/internal/infra/metrics"
	red "tutoring-payment-service/internal/infra/redis"
	"tutoring-payment-service/internal/infra/sched"
	"tutoring-payment-service/internal/infra/web"
	"tutoring-payment-service/internal/infra/worker"
	"tutoring-payment-service/internal/reconcile"
	"tutoring-payment-service/internal/usecase"

	"tutoring-payment-service/internal/domain/ports/adapter"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop gateway, relaxed validation)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("developer mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	payRepo := pg.NewPaymentRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	pendingStore := red.NewPendingPaymentStore(redisClient, cfg.Redis.TTL)
	dashboard := red.NewDashboardCache(redisClient, cfg.Redis.TTL)

	// ---- Payment gateway ----
	var gateway adapter.PaymentGateway
	if cfg.Runtime.Dev && cfg.Provider.YooKassa.ShopID == "" {
		gateway = payAdapters.NewNoopPaymentGateway()
		logger.Warn().Msg("no provider credentials; using noop gateway")
	} else {
		gateway, err = payAdapters.NewYooKassaGateway(cfg.Provider.YooKassa.ShopID, cfg.Provider.YooKassa.SecretKey, cfg.Provider.YooKassa.BaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("yookassa gateway")
		}
	}

	// ---- Use cases ----
	subUC := usecase.NewSubscriptionUseCase(subRepo, gateway, 30*24*time.Hour, logger)
	payUC := usecase.NewPaymentUseCase(payRepo, pendingStore, gateway, subUC, dashboard, cfg.Provider.YooKassa.ReturnURL, logger)

	// ---- Reconciliation ----
	reconciler := reconcile.New(payUC, logger)
	jobPool := worker.NewPool(cfg.Reconciler.SweepWorkers, logger)
	jobPool.Start(ctx)
	defer jobPool.Stop()

	sweep := sched.NewReconcileWorker(payRepo, payUC, reconciler, jobPool, cfg.Reconciler, logger)
	go func() {
		_ = sweep.Run(ctx)
	}()

	// ---- HTTP ----
	auth := web.NewAuthManager(cfg.Security.JWTSecret, cfg.Security.TokenTTL)
	server := web.NewServer(payUC, subUC, auth, dashboard, logger)
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: server.Router(),
	}
	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	// ---- Shutdown ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}
