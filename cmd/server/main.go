// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"shorturl/internal/audit"
	"shorturl/internal/auth"
	"shorturl/internal/cache"
	"shorturl/internal/config"
	"shorturl/internal/entitlement"
	"shorturl/internal/geo"
	"shorturl/internal/handler"
	"shorturl/internal/live"
	"shorturl/internal/ratelimit"
	"shorturl/internal/repository"
	"shorturl/internal/repository/memory"
	postgresRepo "shorturl/internal/repository/postgres"
	"shorturl/internal/service"
	"shorturl/pkg/logger"
)

const sweepInterval = time.Minute

func main() {
	// Simple health check for Docker - just make HTTP request to existing server
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8081"
		}
		resp, err := http.Get("http://localhost:" + port + "/health")
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Load environment variables from .env file (development only)
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	// Load application configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger := logger.New(logger.Options{
		Level:       cfg.LogLevel,
		Environment: cfg.Environment,
		LogDir:      "logs",
	})
	defer appLogger.Sync()
	appLogger.Infow("Starting short link service",
		"environment", cfg.Environment,
		"storage", cfg.StorageDriver,
		"cache", cfg.CacheDriver,
		"rate_limit", cfg.RateLimitDriver,
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Storage
	store, closeStore, err := initStore(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatalw("Failed to initialize storage", "error", err)
	}
	defer closeStore()

	// Redis backs the cache and the limiter when either selects it
	var redisClient *redis.Client
	if cfg.UsesRedis() {
		redisClient, err = cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			appLogger.Fatalw("Failed to connect to Redis", "addr", cfg.RedisAddr, "error", err)
		}
	}

	var entryCache cache.EntryCache
	if cfg.CacheDriver == config.DriverRedis {
		entryCache = cache.NewRedisCache(redisClient, cfg.CacheTTL, appLogger)
	} else {
		memCache := cache.NewMemoryCache(cfg.CacheTTL)
		go memCache.Run(ctx, sweepInterval)
		entryCache = memCache
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimitDriver == config.DriverRedis {
		limiter = ratelimit.NewRedisLimiter(redisClient, cfg.RateLimits, cfg.RateLimitWindow)
	} else {
		memLimiter := ratelimit.NewMemoryLimiter(cfg.RateLimits, cfg.RateLimitWindow)
		go memLimiter.Run(ctx, sweepInterval)
		limiter = memLimiter
	}

	// Entitlements
	policy, err := entitlement.LoadPolicy(cfg.EntitlementPolicyFile)
	if err != nil {
		appLogger.Fatalw("Failed to load entitlement policy", "file", cfg.EntitlementPolicyFile, "error", err)
	}
	entitlements := entitlement.NewResolver(policy, store)

	var locator geo.Locator
	if cfg.GeoAPIURL != "" {
		locator = geo.NewHTTPLocator(cfg.GeoAPIURL, cfg.GeoTimeout, cfg.GeoRequestsPerSecond)
	}

	// Live click feed, relayed through NATS when configured
	hub := live.NewHub(appLogger, cfg.AllowedOrigins)
	var notifier service.ClickNotifier = hub
	var natsConn *nats.Conn
	var relay *live.NATSRelay
	if cfg.NATSURL != "" {
		natsConn, err = live.ConnectNATS(cfg.NATSURL)
		if err != nil {
			appLogger.Fatalw("Failed to connect to NATS", "url", cfg.NATSURL, "error", err)
		}
		relay, err = live.NewNATSRelay(natsConn, hub, appLogger)
		if err != nil {
			appLogger.Fatalw("Failed to start NATS relay", "error", err)
		}
		notifier = relay
	}

	// Initialize service layer with dependency injection
	resolver := service.NewResolver(store, entryCache, entitlements, locator, notifier, cfg, appLogger)
	links := service.NewLinkService(store, entryCache, entitlements, audit.NewLogAuditor(appLogger), cfg, appLogger)

	router := handler.SetupRouter(handler.Dependencies{
		Config:   cfg,
		Logger:   appLogger,
		Resolver: resolver,
		Links:    links,
		Limiter:  limiter,
		Tokens:   auth.NewTokenManager(cfg.JWTSecret, "shorturl", 0),
		Hub:      hub,
	})

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:           fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	// Start server in a goroutine for graceful shutdown
	go func() {
		appLogger.Infow("Server starting", "port", cfg.ServerPort, "base_url", cfg.BaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatalw("Failed to start server", "error", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Infow("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Errorw("Server forced to shutdown", "error", err)
	}

	// Let in-flight click writes finish before closing their backends
	resolver.Wait()
	hub.Stop()
	stop()

	if relay != nil {
		if err := relay.Close(); err != nil {
			appLogger.Errorw("Error closing NATS relay", "error", err)
		}
		natsConn.Close()
	}
	if err := entryCache.Close(); err != nil {
		appLogger.Errorw("Error closing cache", "error", err)
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			appLogger.Errorw("Error closing Redis connection", "error", err)
		}
	}

	appLogger.Infow("Server exited successfully")
}

// initStore opens the configured store. The memory store is seeded with the
// development roles so the service is usable without an account backend.
func initStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (repository.Store, func(), error) {
	if cfg.StorageDriver == config.DriverMemory {
		store := memory.NewStore()
		for user, role := range map[string]string{"dev-free": "Free", "dev-basic": "Basic"} {
			if err := store.AssignRole(ctx, user, role); err != nil {
				return nil, nil, err
			}
		}
		log.Warnw("Using in-memory storage, data is lost on restart")
		return store, func() {}, nil
	}

	db, err := initDatabase(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	if err := postgresRepo.Migrate(db); err != nil {
		return nil, nil, fmt.Errorf("migrate schema: %w", err)
	}

	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return postgresRepo.NewStore(db), closeDB, nil
}

// initDatabase initializes the PostgreSQL database connection with connection pooling
func initDatabase(cfg *config.Config, log *logger.Logger) (*gorm.DB, error) {
	gormLog := gormlogger.New(
		logger.GormWriter{Logger: log},
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode,
	)

	// Connect to PostgreSQL with retry logic
	var db *gorm.DB
	var err error

	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger:                 gormLog,
			SkipDefaultTransaction: true,
			PrepareStmt:            true,
			TranslateError:         true,
		})
		if err == nil {
			break
		}

		log.Warnw("Failed to connect to database, retrying", "attempt", i+1, "error", err)
		time.Sleep(5 * time.Second)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Infow("Database connection established", "host", cfg.DBHost, "name", cfg.DBName)
	return db, nil
}
