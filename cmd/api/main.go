package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/bobbystable/voicepay-backend/api/routes"
	"github.com/bobbystable/voicepay-backend/internal/cron"
	"github.com/bobbystable/voicepay-backend/internal/governor"
	"github.com/bobbystable/voicepay-backend/internal/ledger"
	"github.com/bobbystable/voicepay-backend/internal/payments"
	"github.com/bobbystable/voicepay-backend/internal/receipts"
	"github.com/bobbystable/voicepay-backend/internal/reconcile"
	"github.com/bobbystable/voicepay-backend/internal/sessions"
	"github.com/bobbystable/voicepay-backend/pkg/config"
	"github.com/bobbystable/voicepay-backend/pkg/db"
	"github.com/bobbystable/voicepay-backend/pkg/logger"
	"github.com/bobbystable/voicepay-backend/pkg/metrics"
	"github.com/bobbystable/voicepay-backend/pkg/migrate"
	"github.com/bobbystable/voicepay-backend/pkg/redis"
	"github.com/bobbystable/voicepay-backend/pkg/signalwire"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	swClient, err := signalwire.NewClient(context.Background(), cfg.SignalWire, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create signalwire client", err)
		os.Exit(1)
	}

	payMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)
	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)

	sessionStore := sessions.NewStore(cfg.Payments.SessionTTL)
	gov := governor.New()

	ledgerService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	receiptService, err := receipts.NewService(swClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create receipt service", err)
		os.Exit(1)
	}

	dialogue, err := payments.NewService(payments.ServiceParams{
		Sessions:       sessionStore,
		Ledger:         ledgerService,
		Collector:      swClient,
		Metrics:        payMetrics,
		Logger:         logg,
		Currency:       cfg.Payments.Currency,
		MaxAttempts:    cfg.Payments.MaxAttempts,
		CollectTimeout: cfg.Payments.CollectTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment dialogue", err)
		os.Exit(1)
	}

	reconciler, err := reconcile.NewService(reconcile.ServiceParams{
		Sessions: sessionStore,
		Ledger:   ledgerService,
		Receipts: receiptService,
		Metrics:  payMetrics,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciler", err)
		os.Exit(1)
	}

	webhookGuard, err := reconcile.NewDedupeGuard(redisClient, cfg.Payments.WebhookDedupe, "signalwire")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	// The sweep runs inside the api process because the session store is
	// in-memory; the redis lock still keeps multi-instance deploys to a
	// single sweeper per cycle.
	cronCtx, cancelCron := context.WithCancel(context.Background())
	defer cancelCron()
	if err := startCron(cronCtx, cfg, logg, redisClient, sessionStore, gov, payMetrics, cronMetrics); err != nil {
		logg.Error(context.Background(), "failed to start cron", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg, logg, dbClient, redisClient,
			dialogue, gov, sessionStore, reconciler,
			swClient, webhookGuard, payMetrics,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func startCron(
	ctx context.Context,
	cfg *config.Config,
	logg *logger.Logger,
	redisClient *redis.Client,
	sessionStore *sessions.Store,
	gov *governor.Governor,
	payMetrics *metrics.PaymentMetrics,
	cronMetrics *metrics.CronJobMetrics,
) error {
	sweepJob, err := cron.NewSessionSweepJob(cron.SessionSweepJobParams{
		Logger:   logg,
		Sessions: sessionStore,
		Metrics:  payMetrics,
	})
	if err != nil {
		return err
	}

	pruneJob, err := cron.NewGovernorPruneJob(cron.GovernorPruneJobParams{
		Logger:   logg,
		Governor: gov,
	})
	if err != nil {
		return err
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.CronLockKey("api"), cfg.Cron.LockTTL)
	if err != nil {
		return err
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(sweepJob, pruneJob),
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return err
	}

	go func() {
		if err := service.Run(ctx); err != nil && err != context.Canceled {
			logg.Error(ctx, "cron loop stopped", err)
		}
	}()
	return nil
}
