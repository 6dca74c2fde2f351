// Package app defines the App struct that composes the main dependencies
// shared by every command.
//
// It owns the lifecycle of:
//   - configuration
//   - logger + optional New Relic service wrapper
//   - database pool
//   - redis client (optional)
//
// Commands build an App once, use it, and Close it on the way out.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/deppfellow/go-dbkit/internal/config"
	"github.com/deppfellow/go-dbkit/internal/database"
	"github.com/newrelic/go-agent/v3/integrations/nrredis-v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	loggerPkg "github.com/deppfellow/go-dbkit/internal/logger"
)

// RedisPingTimeout bounds the startup ping so a missing Redis never hangs a command.
const RedisPingTimeout = 5 * time.Second

// App is the application container that holds shared resources.
type App struct {
	// Config holds all environment/config values for the app.
	Config *config.Config

	// Logger is the application's main structured logger.
	Logger *zerolog.Logger

	// LoggerService optionally holds the New Relic application instance.
	LoggerService *loggerPkg.LoggerService

	// DB holds the PostgreSQL pool wrapper.
	DB *database.Database

	// Redis is nil when no address is configured or the server is unreachable.
	Redis *redis.Client
}

// New constructs an App and initializes core dependencies.
//
// Initialization performed:
//   - PostgreSQL pool + optional New Relic tracing
//   - Redis client + optional New Relic hooks
//
// A Redis failure does not block startup: the error is logged and the App
// continues without Redis.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger, loggerService *loggerPkg.LoggerService) (*App, error) {
	db, err := database.New(ctx, cfg, logger, loggerService)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &App{
		Config:        cfg,
		Logger:        logger,
		LoggerService: loggerService,
		DB:            db,
		Redis:         newRedis(ctx, cfg, logger, loggerService),
	}, nil
}

func newRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger, loggerService *loggerPkg.LoggerService) *redis.Client {
	if cfg.Redis == nil {
		return nil
	}

	// Redis connections are lazy; the ping below is the first real round trip.
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Address,
	})

	// Hooks instrument Redis commands so they show up in distributed traces.
	if loggerService.GetApplication() != nil {
		client.AddHook(nrredis.NewHook(client.Options()))
	}

	pingCtx, cancel := context.WithTimeout(ctx, RedisPingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Error().Err(err).Str("address", cfg.Redis.Address).Msg("failed to connect to Redis, continuing without Redis")
		_ = client.Close()
		return nil
	}

	return client
}

// Close releases the database pool and the Redis client. The LoggerService
// belongs to the caller.
func (a *App) Close() error {
	var firstErr error

	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			firstErr = fmt.Errorf("failed to close redis client: %w", err)
		}
	}

	if err := a.DB.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close database connection: %w", err)
	}

	return firstErr
}
