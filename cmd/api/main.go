package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rioprayoga/lensrent-backend/api/routes"
	"github.com/rioprayoga/lensrent-backend/internal/allocation"
	"github.com/rioprayoga/lensrent-backend/internal/availability"
	"github.com/rioprayoga/lensrent-backend/internal/catalog"
	"github.com/rioprayoga/lensrent-backend/internal/inventory"
	"github.com/rioprayoga/lensrent-backend/internal/reservations"
	"github.com/rioprayoga/lensrent-backend/pkg/config"
	"github.com/rioprayoga/lensrent-backend/pkg/db"
	"github.com/rioprayoga/lensrent-backend/pkg/db/models"
	"github.com/rioprayoga/lensrent-backend/pkg/logger"
	"github.com/rioprayoga/lensrent-backend/pkg/metrics"
	"github.com/rioprayoga/lensrent-backend/pkg/migrate"
	redisclient "github.com/rioprayoga/lensrent-backend/pkg/redis"
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

	dbClient, err := openDatabase(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if !cfg.FeatureFlags.UseSQLite {
		if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
			logg.Error(context.Background(), "failed to run dev migrations", err)
			os.Exit(1)
		}
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

	inventoryRepo := inventory.NewRepository(dbClient.DB())
	catalogRepo := catalog.NewRepository(dbClient.DB())
	reservationRepo := reservations.NewRepository(dbClient.DB())

	calculator := availability.NewCalculator(inventoryRepo, catalogRepo)
	availabilityCache := availability.NewCache(calculator, redisClient, cfg.Availability, logg)

	policy := db.RetryPolicy{
		MaxRetries: cfg.Allocation.MaxRetries,
		Backoff:    cfg.Allocation.RetryBackoff,
	}
	allocMetrics := metrics.NewAllocationMetrics(prometheus.DefaultRegisterer)
	allocator := allocation.NewService(dbClient, calculator, catalogRepo, policy, allocMetrics, logg)

	catalogService := catalog.NewService(dbClient, catalogRepo, logg)
	reservationService := reservations.NewService(dbClient, reservationRepo, catalogRepo, allocator, policy, logg)

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
			cfg,
			logg,
			dbClient,
			redisClient,
			availabilityCache,
			catalogService,
			reservationService,
			allocator,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

// openDatabase connects to Postgres, or to a local SQLite file when the
// sqlite flag is set for dependency-free development.
func openDatabase(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*db.Client, error) {
	if !cfg.FeatureFlags.UseSQLite {
		return db.New(ctx, cfg.DB, logg)
	}

	conn, err := gorm.Open(sqlite.Open("lensrent.db"), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		return nil, err
	}
	if err := conn.AutoMigrate(
		&models.Product{},
		&models.SerializedUnit{},
		&models.Bundling{},
		&models.BundlingItem{},
		&models.Reservation{},
		&models.ReservationLine{},
		&models.Allocation{},
	); err != nil {
		return nil, err
	}
	logg.Info(ctx, "sqlite database ready")
	return db.NewWithConn(conn)
}
