package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/learnio/learnio/internal/access"
	"github.com/learnio/learnio/internal/backend"
	"github.com/learnio/learnio/internal/cache"
	"github.com/learnio/learnio/internal/config"
	"github.com/learnio/learnio/internal/events"
	"github.com/learnio/learnio/internal/handlers"
	"github.com/learnio/learnio/internal/identity"
	"github.com/learnio/learnio/internal/payment"
	"github.com/learnio/learnio/internal/portal"
	"github.com/learnio/learnio/internal/query"
	"github.com/learnio/learnio/internal/repositories/postgres"
	"github.com/learnio/learnio/internal/services"
	"github.com/learnio/learnio/internal/session"
	"github.com/learnio/learnio/internal/utils"
	"github.com/learnio/learnio/internal/validator"
	"github.com/learnio/learnio/pkg"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	slogLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	logger := utils.NewSlogLogger(slogLogger)

	// Initialize database
	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Redis backs sessions and the query cache, so it is required
	redisClient, err := pkg.NewRedisClient(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize Redis: %v", err)
	}

	// Initialize repositories
	repoManager := postgres.NewRepositoryManager(postgres.RepositoryConfig{
		DB:          db,
		RedisClient: redisClient,
		AutoMigrate: true,
	})
	if err := repoManager.Initialize(); err != nil {
		log.Fatalf("Failed to initialize repositories: %v", err)
	}

	// Event bus: Kafka when brokers are configured, in-process otherwise
	bus, err := events.NewBus(cfg.Kafka, slogLogger.With("component", "events"))
	if err != nil {
		log.Fatalf("Failed to initialize event bus: %v", err)
	}
	publisher := events.NewWatermillPublisher(bus.Publisher, bus.Topic, slogLogger.With("component", "events"))

	identityProvider := identity.NewCasdoorProvider(cfg.Casdoor)
	validator := validator.New()

	// Initialize services
	serviceManager := services.NewServiceManager(services.ServiceDeps{
		Repositories: repoManager,
		Publisher:    publisher,
		Payments:     payment.NewStripeProvider(cfg.Stripe),
		Logger:       slogLogger,
		Validator:    validator,
	}, services.ServiceManagerConfig{Currency: cfg.Stripe.Currency})
	if err := serviceManager.Initialize(context.Background()); err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}

	// Portal collaborators
	cacheManager := cache.NewCacheManager(redisClient)
	sessions := session.NewStore(cacheManager.Session, cfg.Session.TTL, slogLogger.With("component", "session"))
	queryClient := query.NewClient(cacheManager, cfg.QueryCacheTTL, slogLogger.With("component", "query"))
	backendClient := backend.NewClient(cfg.BackendURL, nil, slogLogger.With("component", "backend"))

	web := portal.New(portal.Deps{
		Backend:   backendClient,
		Query:     queryClient,
		Sessions:  sessions,
		Identity:  identityProvider,
		Validator: validator,
		Session:   cfg.Session,
		PublicURL: cfg.PublicURL,
		Fallback:  access.Fallback(cfg.UnknownRoleFallback),
		Logger:    logger,
	})

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handlers.SetupMiddleware(router, logger, handlers.NewClientRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst))

	handlers.NewHandlerManager(serviceManager, identityProvider, logger).SetupRoutes(router)
	web.SetupRoutes(router)

	// Background consumers stop with the root context
	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	go func() {
		if err := events.Consume(rootCtx, bus.Subscriber, bus.Topic, slogLogger.With("component", "consumer"), queryClient.HandleEvent); err != nil {
			logger.Error("Event consumer stopped", "error", err)
		}
	}()
	go func() {
		if err := web.WatchSessions(rootCtx); err != nil {
			logger.Error("Session watcher stopped", "error", err)
		}
	}()

	// Create HTTP server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Starting server", "port", cfg.Port, "environment", cfg.Environment, "backend_url", cfg.BackendURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	stop()

	// Shutdown services
	if err := serviceManager.Shutdown(ctx); err != nil {
		log.Printf("Failed to shutdown services: %v", err)
	}

	if err := bus.Close(); err != nil {
		log.Printf("Failed to close event bus: %v", err)
	}

	// Close database connection
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	// Close Redis connection
	redisClient.Close()

	logger.Info("Server exited")
}
