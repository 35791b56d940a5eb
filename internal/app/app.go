// Package app builds the long-lived dependencies shared by the server and the
// operator CLI from a loaded configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"thumbforge-backend/internal/config"
	"thumbforge-backend/internal/database"
	"thumbforge-backend/internal/gemini"
	"thumbforge-backend/internal/jobs"
	"thumbforge-backend/internal/lock"
	"thumbforge-backend/internal/realtime"
	"thumbforge-backend/internal/supabase"
)

const (
	sweepLockKey   = "thumbforge:sweep"
	eventPrefix    = "thumbforge"
	redisPingLimit = 5 * time.Second
)

// Store is a record store that can be health-checked and closed.
type Store interface {
	jobs.Store
	Ping(ctx context.Context) error
	Close() error
}

// OpenStore opens the configured record store and brings its schema up to date.
func OpenStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (Store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		db, err := supabase.NewDatabaseClient(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if _, err := db.Migrate(ctx, logger); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return db, nil
	case config.StoreDriverSQLite:
		return database.OpenSQLite(ctx, cfg.SQLitePath, logger)
	case config.StoreDriverMemory:
		logger.Warn().Msg("using in-memory store; records are lost on restart")
		return database.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// OpenRedis returns nil when REDIS_URL is unset.
func OpenRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	client, err := lock.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, redisPingLimit)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return client, nil
}

// Events returns the Redis publisher, or nil when Redis is not configured.
func Events(rdb *redis.Client) jobs.EventPublisher {
	if rdb == nil {
		return nil
	}
	return realtime.NewPublisher(rdb, eventPrefix)
}

// NewSweeper wires the reconciliation sweep. Replicas sharing Redis exclude
// each other through a lease; otherwise a file lock guards a single host.
func NewSweeper(cfg *config.Config, store jobs.Store, rdb *redis.Client, active func(uuid.UUID) bool, logger zerolog.Logger) (*jobs.Sweeper, error) {
	var locker jobs.Locker
	if rdb != nil {
		// The lease outlives one pass so a slow pass is never run twice.
		locker = lock.NewRedisLock(rdb, sweepLockKey, 2*cfg.SweepInterval, logger)
	} else {
		locker = lock.NewFileLock(cfg.SweepLockPath, logger)
	}

	return jobs.NewSweeper(jobs.SweeperOptions{
		Store:      store,
		StaleAfter: cfg.StaleAfter,
		Locker:     locker,
		Active:     active,
		Events:     Events(rdb),
		Interval:   cfg.SweepInterval,
		BatchSize:  cfg.SweepBatchSize,
		Logger:     logger,
	})
}

// NewManager wires the job manager with the Gemini provider and, when
// Supabase is configured, asset storage and owner lookups.
func NewManager(cfg *config.Config, store jobs.Store, pool *jobs.Pool, rdb *redis.Client, logger zerolog.Logger) (*jobs.Manager, error) {
	provider, err := gemini.NewClient(gemini.Options{
		APIKey:    cfg.GeminiAPIKey,
		BaseURL:   cfg.GeminiAPIBaseURL,
		Model:     cfg.GeminiModel,
		RateLimit: cfg.GeminiRateLimit,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	opts := jobs.ManagerOptions{
		Store:             store,
		Provider:          provider,
		Pool:              pool,
		Events:            Events(rdb),
		GenerationTimeout: cfg.GenerationTimeout,
		Logger:            logger,
	}

	if cfg.SupabaseEnabled() {
		client, err := supabase.NewClient(cfg)
		if err != nil {
			return nil, err
		}
		opts.Identities = client.Identities()
		opts.Assets = supabase.NewStorageClient(cfg.SupabaseURL, cfg.SupabasePublishableKey, cfg.SupabaseStorageBucket)
	} else {
		logger.Warn().Msg("supabase not configured; results stored inline and owners only format-checked")
	}

	return jobs.NewManager(opts)
}

// Close releases whatever was opened, ignoring nil entries.
func Close(store Store, rdb *redis.Client) error {
	var errs []error
	if store != nil {
		errs = append(errs, store.Close())
	}
	if rdb != nil {
		errs = append(errs, rdb.Close())
	}
	return errors.Join(errs...)
}
