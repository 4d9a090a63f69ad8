package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-orgchart/pkg/config"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/crypto"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/database"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/logging"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/retry"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/sessions"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/staging"
)

// app holds the long-lived dependencies shared by the subcommands.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *database.DB
	redis  *redis.Client
}

// bootstrap loads configuration and builds the logger.
func bootstrap() (*app, error) {
	cfg, err := config.Load(Version)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return &app{cfg: cfg, logger: logger}, nil
}

// migrate applies pending migrations.
func (a *app) migrate() error {
	connStr := a.cfg.Database.ConnectionString()
	a.logger.Info("Running migrations", zap.String("database", logging.SanitizeConnectionString(connStr)))

	sqlDB, err := database.OpenSQL(connStr)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	return database.RunMigrations(sqlDB, a.logger)
}

// connectDB opens the PostgreSQL pool.
func (a *app) connectDB(ctx context.Context) error {
	db, err := retry.DoWithResult(a.retryContext(ctx, "postgres"), retry.DefaultConfig(), func() (*database.DB, error) {
		return database.NewConnection(ctx, &database.Config{
			URL:            a.cfg.Database.ConnectionString(),
			MaxConnections: a.cfg.Database.MaxConnections,
		})
	})
	if err != nil {
		return err
	}
	a.db = db
	return nil
}

// connectRedis opens the Redis client when one is configured.
func (a *app) connectRedis(ctx context.Context) error {
	client, err := retry.DoWithResult(a.retryContext(ctx, "redis"), retry.DefaultConfig(), func() (*redis.Client, error) {
		return database.NewRedisClient(ctx, &a.cfg.Redis)
	})
	if err != nil {
		return err
	}
	a.redis = client
	if client != nil {
		a.logger.Info("Connected to Redis",
			zap.String("host", a.cfg.Redis.Host),
			zap.Int("port", a.cfg.Redis.Port))
	}
	return nil
}

// retryContext logs each failed connection attempt.
func (a *app) retryContext(ctx context.Context, dependency string) context.Context {
	return retry.WithObserver(ctx, func(attempt int, wait time.Duration, err error) {
		a.logger.Warn("Dependency not reachable, retrying",
			zap.String("dependency", dependency),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.String("error", logging.SanitizeError(err)))
	})
}

// stagingStore builds the configured staging backend.
func (a *app) stagingStore() (staging.Store, error) {
	var opts []staging.Option
	if key := a.cfg.Staging.EncryptionKey; key != "" {
		sealer, err := crypto.NewSealer(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create staging sealer: %w", err)
		}
		opts = append(opts, staging.WithSealer(sealer))
	}

	switch a.cfg.Staging.Backend {
	case config.StagingBackendRedis:
		if a.redis == nil {
			return nil, fmt.Errorf("staging backend %q requires redis", config.StagingBackendRedis)
		}
		return staging.NewRedisStore(a.redis, a.cfg.StagingTTL(), a.logger, opts...), nil
	default:
		return staging.NewDiskStore(a.cfg.Staging.Dir, a.logger, opts...)
	}
}

// sessionStore keeps session state in Redis when it is available, in memory otherwise.
func (a *app) sessionStore() sessions.Store {
	if a.redis != nil {
		return sessions.NewRedisStore(a.redis, a.cfg.SessionTTL(), a.logger)
	}
	return sessions.NewMemoryStore(a.cfg.SessionTTL(), a.logger)
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("Failed to close Redis client", zap.Error(err))
		}
	}
	if a.db != nil {
		a.db.Close()
	}
	_ = a.logger.Sync()
}
