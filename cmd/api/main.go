package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"todo-api/configs"
	"todo-api/internal/api"
	"todo-api/internal/api/handlers"
	"todo-api/internal/config"
	"todo-api/internal/repository"
	"todo-api/internal/service"
	"todo-api/pkg/database"
	"todo-api/pkg/logger"
	"todo-api/pkg/token"

	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		logger.ErrorLogger.Error("Application stopped", zap.Error(err))
		logger.SyncLoggers()
		log.Fatal(err)
	}
}

func run() error {
	// Load config
	cfg := configs.LoadConfig()

	// Loggers
	if err := logger.InitLoggers(cfg.LogDir); err != nil {
		return fmt.Errorf("init loggers: %w", err)
	}
	defer logger.SyncLoggers()
	logger.SystemLogger.Info("Starting application", zap.String("time", time.Now().Format(time.RFC3339)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		// tokens do not survive a restart
		generated, err := token.RandomSecret()
		if err != nil {
			return fmt.Errorf("generate jwt secret: %w", err)
		}
		secret = generated
		logger.SecurityLogger.Warn("JWT_SECRET is not set, using a random secret for this process")
	}
	tokens, err := token.NewManager(token.Config{
		Secret: secret,
		TTL:    cfg.JWTTTL,
		Issuer: cfg.JWTIssuer,
	})
	if err != nil {
		return fmt.Errorf("create token manager: %w", err)
	}

	// Database
	db, err := database.ConnectDB(ctx, cfg.DSN())
	if err != nil {
		return err
	}
	defer db.Close()
	logger.SystemLogger.Info("Database connected")

	if err := repository.Migrate(ctx, db); err != nil {
		return err
	}

	rateLimit := config.RateLimit{Max: cfg.RateLimitMax, Window: cfg.RateLimitWindow}
	if cfg.RedisEnabled() {
		redisClient, err := database.ConnectRedis(ctx, cfg.RedisAddr(), cfg.RedisPassword)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		rateLimit.Storage = database.NewRedisStorage(redisClient, "todo-api:limiter:")
		logger.SystemLogger.Info("Redis connected, rate limit counters are shared", zap.String("addr", cfg.RedisAddr()))
	}

	app := api.NewApp(config.Dependencies{
		Auth:             service.NewAuthService(repository.NewUserRepository(db), tokens),
		Tasks:            repository.NewTaskRepository(db),
		Tokens:           tokens,
		Validate:         handlers.NewValidator(),
		DB:               db,
		CORSAllowOrigins: cfg.CORSAllowOrigins,
		RateLimit:        rateLimit,
	})

	listenErr := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.AppPort)
		logger.SystemLogger.Info("Application ready", zap.String("addr", addr))
		listenErr <- app.Listen(addr)
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.SystemLogger.Info("Shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
