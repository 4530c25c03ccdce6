package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rioprayoga/lensrent-backend/internal/allocation"
	"github.com/rioprayoga/lensrent-backend/internal/availability"
	"github.com/rioprayoga/lensrent-backend/internal/catalog"
	"github.com/rioprayoga/lensrent-backend/internal/cron"
	"github.com/rioprayoga/lensrent-backend/internal/inventory"
	"github.com/rioprayoga/lensrent-backend/internal/reservations"
	"github.com/rioprayoga/lensrent-backend/pkg/config"
	"github.com/rioprayoga/lensrent-backend/pkg/db"
	"github.com/rioprayoga/lensrent-backend/pkg/logger"
	"github.com/rioprayoga/lensrent-backend/pkg/metrics"
	"github.com/rioprayoga/lensrent-backend/pkg/migrate"
	redisclient "github.com/rioprayoga/lensrent-backend/pkg/redis"
)


func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	redisClient, err := redisclient.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	inventoryRepo := inventory.NewRepository(dbClient.DB())
	catalogRepo := catalog.NewRepository(dbClient.DB())
	reservationRepo := reservations.NewRepository(dbClient.DB())
	calculator := availability.NewCalculator(inventoryRepo, catalogRepo)

	policy := db.RetryPolicy{
		MaxRetries: cfg.Allocation.MaxRetries,
		Backoff:    cfg.Allocation.RetryBackoff,
	}
	allocator := allocation.NewService(dbClient, calculator, catalogRepo, policy, nil, logg)
	reservationService := reservations.NewService(dbClient, reservationRepo, catalogRepo, allocator, policy, logg)

	ttlJob, err := cron.NewReservationTTLJob(cron.ReservationTTLJobParams{
		Logger:         logg,
		Reader:         reservationRepo,
		Transitioner:   reservationService,
		PendingHoldTTL: cfg.Cron.PendingHoldTTL,
		OverdueGrace:   cfg.Cron.OverdueGrace,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reservation ttl job", err)
		os.Exit(1)
	}
	auditJob, err := cron.NewAllocationAuditJob(cron.AllocationAuditJobParams{
		Logger: logg,
		Reader: reservationRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create allocation audit job", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(ttlJob, auditJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})
	logg.Info(ctx, "starting cron worker")

	if !cfg.Cron.MetricsDisabled {
		go serveMetrics(ctx, cfg.Cron.MetricsAddr, logg)
	}

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func serveMetrics(ctx context.Context, addr string, logg *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()

	logg.Info(logg.WithField(ctx, "addr", addr), "metrics endpoint listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "metrics endpoint stopped unexpectedly", err)
	}
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("cron-worker:%s", env)
}
