// Package main is the entry point for the aqualist API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"aqualist/internal/core/clock"
	"aqualist/internal/domain/audit"
	"aqualist/internal/domain/auth"
	"aqualist/internal/domain/listing"
	"aqualist/internal/domain/notify"
	"aqualist/internal/domain/settings"
	"aqualist/internal/infrastructure/cache"
	v1 "aqualist/internal/infrastructure/http/v1"
	natsmsg "aqualist/internal/infrastructure/messaging/nats"
	"aqualist/internal/infrastructure/storage/postgres"
	"aqualist/internal/infrastructure/storage/postgres/listing_repo"
	"aqualist/internal/infrastructure/storage/postgres/settings_repo"
	"aqualist/pkg/logger"
)

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	log.Info("starting aqualist server")

	// --- Database ---
	dsn := mustEnv("DATABASE_URL")
	poolCfg := postgres.DefaultPoolConfig(dsn)
	if maxConns := getEnvInt("DB_MAX_CONNS", 0); maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txManager := postgres.NewTxManager(pool)

	// --- JWT ---
	jwtSecret := getEnv("JWT_SECRET", "your-secret-key-change-in-production")
	jwtService := auth.NewJWTService(auth.DefaultJWTConfig(jwtSecret))

	// --- Repositories ---
	listingRepo := listing_repo.NewRepo(txManager)
	settingsRepo := settings_repo.NewRepo(txManager)

	// --- Audit store ---
	var auditor audit.Recorder
	auditStore, err := postgres.NewAuditStore(txManager)
	if err != nil {
		log.Fatalw("failed to create audit store", "error", err)
	}
	auditor = auditStore

	// --- Notifications (optional) ---
	var notifier notify.Notifier = notify.Nop{}
	if natsURL := getEnv("NATS_URL", ""); natsURL != "" {
		publisher, err := natsmsg.NewPublisher(natsURL)
		if err != nil {
			log.Warnw("nats unavailable, notifications disabled", "error", err)
		} else {
			defer publisher.Close()
			notifier = publisher
			log.Info("nats notifications enabled")
		}
	}

	// --- Listing cache (optional) ---
	var listingCache listing.Cache
	if redisAddr := getEnv("REDIS_ADDR", ""); redisAddr != "" {
		client, err := cache.NewRedisClient(redisAddr, getEnv("REDIS_PASSWORD", ""), getEnvInt("REDIS_DB", 0))
		if err != nil {
			log.Warnw("redis unavailable, listing cache disabled", "error", err)
		} else {
			defer client.Close()
			listingCache = cache.NewListingCache(client, getEnvDuration("LISTING_CACHE_TTL", cache.DefaultTTL))
			log.Info("redis listing cache enabled")
		}
	}

	// --- Services ---
	settingsService := settings.NewService(settingsRepo, txManager)
	listingService := listing.NewService(
		listingRepo,
		settingsService,
		txManager,
		clock.System{},
		auditor,
		notifier,
		listingCache,
	)

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Pool:            pool,
		Logger:          log,
		JWTValidator:    jwtService,
		ListingService:  listingService,
		SettingsService: settingsService,
		AuditHistory:    auditStore,
	})

	// --- HTTP Server ---
	port := getEnv("APP_PORT", "8080")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
