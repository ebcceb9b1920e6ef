package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wequack/internal/config"
	"wequack/internal/handler"
	"wequack/internal/hub"
	"wequack/internal/middleware"
	"wequack/internal/repository"
	"wequack/internal/service"
	"wequack/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var appLogger logger.Logger
	if cfg.IsProduction() {
		appLogger = logger.New(cfg.Log.Level)
	} else {
		appLogger = logger.NewConsole(cfg.Log.Level)
	}

	ctx := context.Background()

	// PostgreSQL необязателен: без DSN работаем в памяти
	var dbPool *pgxpool.Pool
	var dbPinger handler.Pinger
	if cfg.Database.DSN != "" {
		dbPool = connectDatabase(ctx, cfg, appLogger)
		defer dbPool.Close()
		dbPinger = dbPool
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			appLogger.Fatal("Failed to connect to Redis", "error", err)
		}
		appLogger.Info("Redis connection established")
	}

	repos := repository.NewRepositories(dbPool, rdb, appLogger)

	connections := hub.New(appLogger)
	services := service.NewServices(repos, cfg, connections, appLogger)

	// No connection survives a restart.
	if err := services.Presence.Reset(ctx); err != nil {
		appLogger.Fatal("Failed to reset presence", "error", err)
	}

	eventRouter := hub.NewRouter(connections, services, cfg.WebSocket, appLogger)

	authMiddleware := middleware.NewAuthMiddleware(services.Auth, appLogger)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(services.RateLimit, appLogger)

	handlers := handler.NewHandlers(services, connections, eventRouter, dbPinger, cfg, appLogger)

	router := setupRouter(handlers, authMiddleware, rateLimitMiddleware, cfg, appLogger)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		appLogger.Info("Starting server", "host", cfg.Server.Host, "port", cfg.Server.Port, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Ожидание сигнала для graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...", "connections", connections.Count())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown does not track hijacked connections, close them ourselves.
	connections.CloseAll()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", "error", err)
	}

	appLogger.Info("Server exited")
}

func connectDatabase(ctx context.Context, cfg *config.Config, appLogger logger.Logger) *pgxpool.Pool {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN)
	if err != nil {
		appLogger.Fatal("Invalid database DSN", "error", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConnections)

	dbPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", "error", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		appLogger.Fatal("Failed to ping database", "error", err)
	}
	appLogger.Info("Database connection established")

	if err := repository.Migrate(ctx, dbPool); err != nil {
		appLogger.Fatal("Failed to apply schema", "error", err)
	}
	appLogger.Info("Database schema is up to date")

	return dbPool
}

func setupRouter(
	handlers *handler.Handlers,
	authMiddleware *middleware.AuthMiddleware,
	rateLimitMiddleware *middleware.RateLimitMiddleware,
	cfg *config.Config,
	log logger.Logger,
) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	router.Use(middleware.Metrics())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.ErrorHandler())

	handler.RegisterRoutes(router, handlers, authMiddleware, rateLimitMiddleware)

	return router
}
