package main

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"thumbforge-backend/internal/app"
	"thumbforge-backend/internal/config"
	"thumbforge-backend/internal/logging"
)

type commandContext struct {
	logLevel *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(logLevel *string) *commandContext {
	return &commandContext{logLevel: logLevel}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		c.config, c.configErr = config.Load()
	})
	return c.config, c.configErr
}

func (c *commandContext) logger() zerolog.Logger {
	cfg, _ := c.ensureConfig()
	level, environment := "info", "development"
	if cfg != nil {
		level, environment = cfg.LogLevel, cfg.Environment
	}
	if c.logLevel != nil && strings.TrimSpace(*c.logLevel) != "" {
		level = *c.logLevel
	}
	return logging.New(environment, level)
}

// withStore opens the configured store, migrating it first, for the duration of fn.
func (c *commandContext) withStore(ctx context.Context, fn func(*config.Config, app.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := app.OpenStore(ctx, cfg, c.logger())
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cfg, store)
}
