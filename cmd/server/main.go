// @title           Thumbforge Backend API
// @version         1.0.0
// @description     Backend API for AI thumbnail generation. Submitting a thumbnail starts a generation job; clients poll the thumbnail record until it is Complete or Failed.

// @contact.name   API Support
// @contact.email  support@example.com

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

package main

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/sync/errgroup"

	"thumbforge-backend/docs"
	"thumbforge-backend/internal/app"
	"thumbforge-backend/internal/config"
	"thumbforge-backend/internal/handlers"
	"thumbforge-backend/internal/jobs"
	"thumbforge-backend/internal/logging"
	"thumbforge-backend/internal/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("development", "info")
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.New(cfg.Environment, cfg.LogLevel)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	configureSwagger(cfg.BaseURL)

	store, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	rdb, err := app.OpenRedis(ctx, cfg)
	if err != nil {
		_ = app.Close(store, nil)
		return err
	}
	defer func() {
		if err := app.Close(store, rdb); err != nil {
			logger.Warn().Err(err).Msg("failed to close dependencies")
		}
	}()

	pool := jobs.NewPool(cfg.WorkerConcurrency, logger)
	manager, err := app.NewManager(cfg, store, pool, rdb, logger)
	if err != nil {
		return err
	}
	sweeper, err := app.NewSweeper(cfg, store, rdb, manager.IsActive, logger)
	if err != nil {
		return err
	}

	checks := map[string]handlers.Pinger{"store": store}
	if rdb != nil {
		checks["redis"] = redisPinger{client: rdb}
	}

	router := gin.New()
	router.Use(middleware.RequestLogger(logger))
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", handlers.NewHealthHandler(checks).Health)

	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(cfg))
	handlers.NewThumbnailsHandler(manager, logger).Register(api)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("port", cfg.Port).Str("store", cfg.StoreDriver).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		// In-flight generations get the rest of the deadline. Runs cut short
		// record Failed/ProviderUnavailable; units still queued for a slot stay
		// Generating for the next sweep.
		if stopErr := pool.Stop(shutdownCtx); stopErr != nil {
			logger.Warn().Err(stopErr).Msg("generation units cancelled at shutdown")
		}
		return err
	})

	return g.Wait()
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func configureSwagger(baseURL string) {
	if baseURL == "" {
		return
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return
	}
	docs.SwaggerInfo.Host = u.Host
	if u.Scheme == "https" {
		docs.SwaggerInfo.Schemes = []string{"https", "http"}
	} else {
		docs.SwaggerInfo.Schemes = []string{"http", "https"}
	}
}
