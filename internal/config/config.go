package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
	StoreDriverMemory   = "memory"
)

type Config struct {
	// Gemini API
	GeminiAPIKey     string  `env:"GEMINI_API_KEY"`
	GeminiAPIBaseURL string  `env:"GEMINI_API_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta"`
	GeminiModel      string  `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash-image"`
	GeminiRateLimit  float64 `env:"GEMINI_RATE_LIMIT" envDefault:"2"`

	// Supabase
	SupabaseURL            string `env:"SUPABASE_URL"`
	SupabasePublishableKey string `env:"SUPABASE_PUBLISHABLE_KEY"`
	SupabaseJWTSecret      string `env:"SUPABASE_JWT_SECRET"`
	SupabaseStorageBucket  string `env:"SUPABASE_STORAGE_BUCKET" envDefault:"thumbnails"`
	SupabaseProfilesTable  string `env:"SUPABASE_PROFILES_TABLE" envDefault:"profiles"`

	// Record store
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"thumbforge.db"`

	// Redis is optional; without it the sweep uses a file lock and events are dropped.
	RedisURL string `env:"REDIS_URL"`

	// Generation lifecycle
	GenerationTimeout time.Duration `env:"GENERATION_TIMEOUT" envDefault:"45s"`
	StaleAfter        time.Duration `env:"STALE_AFTER" envDefault:"5m"`
	SweepInterval     time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	SweepBatchSize    int           `env:"SWEEP_BATCH_SIZE" envDefault:"100"`
	SweepLockPath     string        `env:"SWEEP_LOCK_PATH" envDefault:"thumbforge-sweep.lock"`
	WorkerConcurrency int           `env:"WORKER_CONCURRENCY" envDefault:"8"`

	// Server
	Port            string        `env:"PORT" envDefault:"8080"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	BaseURL         string        `env:"BASE_URL" envDefault:"http://localhost:8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// Load reads .env files when present, then the process environment.
func Load() (*Config, error) {
	// Missing .env files are fine; the environment may already be populated.
	_ = godotenv.Load(".env", ".env.local")

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.SupabaseJWTSecret == "" {
		return fmt.Errorf("SUPABASE_JWT_SECRET is required")
	}
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case StoreDriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER=sqlite")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be one of postgres, sqlite, memory; got %q", c.StoreDriver)
	}
	if c.GenerationTimeout <= 0 {
		return fmt.Errorf("GENERATION_TIMEOUT must be positive")
	}
	if c.StaleAfter <= c.GenerationTimeout {
		return fmt.Errorf("STALE_AFTER (%s) must exceed GENERATION_TIMEOUT (%s)", c.StaleAfter, c.GenerationTimeout)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	if c.SweepBatchSize <= 0 {
		return fmt.Errorf("SWEEP_BATCH_SIZE must be positive")
	}
	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive")
	}
	if c.GeminiRateLimit < 0 {
		return fmt.Errorf("GEMINI_RATE_LIMIT must not be negative")
	}
	return nil
}

// SupabaseEnabled reports whether the Supabase REST and storage APIs are configured.
func (c *Config) SupabaseEnabled() bool {
	return c.SupabaseURL != "" && c.SupabasePublishableKey != ""
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
