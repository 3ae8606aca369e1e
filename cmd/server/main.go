package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bazaarverse/numrent/internal/config"
	"github.com/bazaarverse/numrent/internal/handlers"
	"github.com/bazaarverse/numrent/internal/repository"
	"github.com/bazaarverse/numrent/internal/service"
	"github.com/bazaarverse/numrent/pkg/cache"
	"github.com/bazaarverse/numrent/pkg/database"
	"github.com/bazaarverse/numrent/pkg/logger"
	"github.com/bazaarverse/numrent/pkg/messaging"
	"github.com/bazaarverse/numrent/pkg/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", logger.Field{Key: "error", Value: err.Error()})
	}

	log := logger.New(cfg.App.LogLevel, cfg.App.LogFormat)
	logger.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MongoDB
	db, err := database.NewMongoDB(cfg.Database.URI, cfg.Database.DBName, cfg.Database.Timeout)
	if err != nil {
		log.Fatal("failed to connect to mongodb", logger.Field{Key: "error", Value: err.Error()})
	}
	defer db.Close()

	// Redis
	redisCache, err := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal("failed to connect to redis", logger.Field{Key: "error", Value: err.Error()})
	}
	defer redisCache.Close()

	// RabbitMQ is optional; the service degrades to not publishing events.
	var broker service.EventBroker
	if cfg.RabbitMQ.Enabled {
		rabbit, err := messaging.NewRabbitMQ(cfg.RabbitMQ.URL)
		if err != nil {
			log.Warn("rabbitmq unavailable, events disabled", logger.Field{Key: "error", Value: err.Error()})
		} else {
			defer rabbit.Close()
			broker = rabbit
		}
	}

	// Repositories
	userRepo := repository.NewUserRepository(db, log)
	numberRepo := repository.NewNumberRepository(db, log)
	sessionRepo := repository.NewSessionRepository(db, log)

	indexCtx, indexCancel := context.WithTimeout(ctx, 30*time.Second)
	defer indexCancel()
	for _, ensure := range []func(context.Context) error{
		userRepo.EnsureIndexes,
		numberRepo.EnsureIndexes,
		sessionRepo.EnsureIndexes,
	} {
		if err := ensure(indexCtx); err != nil {
			log.Fatal("failed to create indexes", logger.Field{Key: "error", Value: err.Error()})
		}
	}

	// Services
	events, err := service.NewEventPublisher(broker, log)
	if err != nil {
		log.Warn("event publisher disabled", logger.Field{Key: "error", Value: err.Error()})
	}

	metrics := service.NewMetricsCollector()
	cacheService := service.NewCacheService(redisCache, log)
	provider := service.NewProviderClient(cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Provider.Timeout, log).WithMetrics(metrics)

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret, cfg.JWT.ExpiresIn)
	authService := service.NewAuthService(userRepo, sessionRepo, authMiddleware, cfg.JWT.ExpiresIn, log)

	numberService := service.NewNumberService(
		userRepo, numberRepo, provider,
		cacheService, events, metrics,
		cfg.Provider, cfg.Numbers, log,
	)
	sweeper := service.NewSweeper(numberRepo, userRepo, provider, events, metrics, cfg.Numbers, log)
	accountService := service.NewAccountService(userRepo, numberRepo, log)
	adminService := service.NewAdminService(userRepo, numberRepo, sessionRepo, sweeper, log)

	if err := authService.EnsureDefaultAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password); err != nil {
		log.Fatal("failed to bootstrap admin account", logger.Field{Key: "error", Value: err.Error()})
	}

	if cfg.Numbers.SweepEnabled {
		go sweeper.Run(ctx)
	}

	// HTTP
	router := &handlers.Router{
		Auth:    handlers.NewAuthHandler(authService, log),
		Numbers: handlers.NewNumberHandler(numberService, log),
		Users:   handlers.NewUserHandler(accountService, log),
		Admin:   handlers.NewAdminHandler(adminService, log),
	}
	engine := router.Setup(cfg, authMiddleware)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.App.Port),
		Handler: engine,
	}

	go func() {
		log.Info("http server listening", logger.Field{Key: "port", Value: cfg.App.Port})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", logger.Field{Key: "error", Value: err.Error()})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", logger.Field{Key: "error", Value: err.Error()})
	}

	log.Info("server exited")
}
