// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"orafinite-billing/internal/config"
	"orafinite-billing/internal/domain/ports/adapter"
	"orafinite-billing/internal/infra/api"
	pg "orafinite-billing/internal/infra/db/postgres"
	"orafinite-billing/internal/infra/esewa"
	"orafinite-billing/internal/infra/logging"
	"orafinite-billing/internal/infra/metrics"
	"orafinite-billing/internal/infra/ratelimit"
	red "orafinite-billing/internal/infra/redis"
	"orafinite-billing/internal/infra/sched"
	"orafinite-billing/internal/infra/worker"
	"orafinite-billing/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

const (
	initiateLimit  = 5
	initiateWindow = time.Minute
	planSyncDelay  = 500 * time.Millisecond
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, unredacted secrets)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("billing service stopped")
	}
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Gateway config ----
	gwCfg, err := esewa.NewConfig(
		cfg.Payment.Esewa.ProductCode,
		cfg.Payment.Esewa.SecretKey,
		cfg.Payment.Esewa.Environment,
		cfg.App.BaseURL,
		cfg.Payment.Esewa.StatusTimeout,
	)
	if err != nil {
		return fmt.Errorf("esewa: %w", err)
	}
	logger.Info().
		Str("environment", string(gwCfg.Environment)).
		Str("product_code", gwCfg.ProductCode).
		Str("secret_key", logging.Redact(gwCfg.SecretKey, cfg.Runtime.Dev)).
		Str("success_url", gwCfg.SuccessURL()).
		Msg("payment gateway configured")
	gateway := esewa.NewGateway(gwCfg)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool); err != nil {
		return err
	}

	checks := map[string]api.Pinger{"postgres": pool}

	// ---- Redis (optional) ----
	var redisClient *red.Client
	var locker sched.Locker
	if cfg.Redis.URL != "" {
		redisClient, err = red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer redisClient.Close()
		checks["redis"] = redisClient
		locker = red.NewLocker(redisClient)
	}

	// ---- Rate limiter ----
	var limiter adapter.RateLimiter
	switch cfg.Payment.RateLimit.Backend {
	case "redis":
		limiter = ratelimit.Instrument("redis", red.NewRateLimiter(redisClient, "payment-initiate", initiateLimit, initiateWindow))
	default:
		mem := ratelimit.NewMemoryLimiter(initiateLimit, initiateWindow)
		defer mem.Stop()
		limiter = ratelimit.Instrument("memory", mem)
	}
	logger.Info().Str("backend", cfg.Payment.RateLimit.Backend).Msg("initiation rate limit ready")

	// ---- Repositories ----
	payRepo := pg.NewPaymentRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	tm := pg.NewTxManager(pool)

	// ---- Plan sync ----
	syncPool := worker.NewPool(cfg.Workers.PlanSyncWorkers, logger)
	syncer := worker.NewPlanSyncDispatcher(syncPool, pg.NewPlanSyncRepo(pool), cfg.Workers.PlanSyncAttempts, planSyncDelay, logger)

	// ---- Use cases ----
	paymentUC := usecase.NewPaymentUseCase(payRepo, subRepo, gateway, limiter, logger)
	callbackUC := usecase.NewCallbackUseCase(payRepo, subRepo, tm, gateway, syncer, logger,
		usecase.WithStatusTimeout(cfg.Payment.Esewa.StatusTimeout))
	subUC := usecase.NewSubscriptionUseCase(subRepo, logger)

	// ---- HTTP ----
	srv := api.NewServer(api.Deps{
		Payments:       paymentUC,
		Callbacks:      callbackUC,
		Subscriptions:  subUC,
		Sessions:       api.NewSessions(cfg.Session.Secret, cfg.Session.CookieName),
		Gateway:        gwCfg,
		Checks:         checks,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		Logger:         logger,
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// ---- Run ----
	// The sync pool outlives the request contexts and is drained after the server stops.
	syncPool.Start(context.WithoutCancel(ctx))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return ignoreCanceled(sched.NewPaymentSweeper(paymentUC, locker, cfg.Workers.SweepInterval, logger).Run(gctx))
	})
	g.Go(func() error {
		return ignoreCanceled(sched.NewExpiryWorker(cfg.Workers.ExpiryInterval, subUC, locker, logger).Run(gctx))
	})
	g.Go(func() error {
		return ignoreCanceled(pg.ReportPoolStats(gctx, pool, 15*time.Second))
	})

	err = g.Wait()
	syncPool.Stop()
	logger.Info().Msg("billing service stopped")
	return err
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
