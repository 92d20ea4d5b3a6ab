package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/opsdesk/pricing-engine/config"
	"github.com/opsdesk/pricing-engine/internal/database"
	"github.com/opsdesk/pricing-engine/internal/engine"
	"github.com/opsdesk/pricing-engine/internal/handlers"
	"github.com/opsdesk/pricing-engine/internal/middleware"
	"github.com/opsdesk/pricing-engine/internal/rules"
	"github.com/opsdesk/pricing-engine/internal/stores"
	"github.com/opsdesk/pricing-engine/internal/sweepers"
	"github.com/opsdesk/pricing-engine/internal/taskqueue"
	"github.com/opsdesk/pricing-engine/internal/telemetry"
	"github.com/opsdesk/pricing-engine/internal/workers"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := initLogger(cfg.Logging)
	log.Logger = *logger

	logger.Info().Msg("Starting pricing engine")

	ctx := context.Background()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		Environment: cfg.Telemetry.Environment,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize telemetry")
	}

	dbURL := config.GetDatabaseURL()
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL not set")
	}

	if err := database.Connect(
		ctx,
		dbURL,
		cfg.Database.MaxConnections,
		cfg.Database.MinConnections,
		cfg.Database.MaxConnLifetime,
		cfg.Database.MaxConnIdleTime,
	); err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	logger.Info().Msg("Database connected")

	pool := database.Pool()
	ruleStore := rules.NewStore(pool)
	catalogStore := stores.NewCatalogStore(pool)
	priceListStore := stores.NewPriceListStore(pool)
	runStore := stores.NewRunStore(pool)

	eng := engine.New(ruleStore, catalogStore, priceListStore, runStore, engine.Config{
		Concurrency:     cfg.Engine.Concurrency,
		PersistTimeout:  cfg.Engine.PersistTimeout,
		DefaultQuantity: cfg.Engine.DefaultQuantity,
	})

	queue := taskqueue.New(pool)
	handlers.Init(eng, runStore, priceListStore, queue)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	var worker *workers.Worker
	if cfg.Worker.Enabled {
		hostname, _ := os.Hostname()
		worker = workers.New(queue, eng, workers.Config{
			WorkerID:   hostname,
			NumWorkers: cfg.Worker.NumWorkers,
			MaxTasks:   cfg.Worker.MaxTasks,
			PollDelay:  cfg.Worker.PollDelay,
		})
		worker.Start(workerCtx)
	}

	taskSweeper := sweepers.NewTaskQueueSweeper(queue, logger, 5*time.Minute)
	go taskSweeper.Start(workerCtx)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	setupRequestLogging(router, logger)

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	rateLimiter := middleware.NewIPRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
	})
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			rateLimiter.Cleanup(time.Hour)
		}
	}()

	internal := router.Group("/internal")
	internal.Use(middleware.InternalAuth(os.Getenv("INTERNAL_API_KEY")))
	internal.Use(rateLimiter.Middleware())
	{
		internal.GET("/health", handlers.HealthCheck)
		internal.GET("/rules/fields", handlers.ListConditionFields)
		internal.GET("/tasks/:taskId", handlers.GetTask)

		priceLists := internal.Group("/price-lists")
		{
			priceLists.POST("/:priceListId/apply-rules", handlers.ApplyRules)
			priceLists.GET("/:priceListId/rules", handlers.ListActiveRules)
			priceLists.GET("/:priceListId/runs", handlers.ListRuns)
		}

		runs := internal.Group("/runs")
		{
			runs.GET("/:runId", handlers.GetRun)
			runs.GET("/:runId/export", handlers.ExportRun)
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")
	taskSweeper.Stop()
	if worker != nil {
		worker.Stop()
	}
	stopWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Telemetry shutdown failed")
	}

	logger.Info().Msg("Server exited")
}

func initLogger(cfg config.LoggingConfig) *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var output io.Writer
	if cfg.Format == "json" {
		output = os.Stdout
	} else {
		output = zerolog.ConsoleWriter{Out: os.Stdout, NoColor: cfg.NoColor}
	}

	logger := zerolog.New(output).Level(level).With().Timestamp().Str("service", "pricing-engine").Logger()
	return &logger
}

func setupRequestLogging(router *gin.Engine, logger *zerolog.Logger) {
	router.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("ip", c.ClientIP()).
			Msg("HTTP request")
	})
}
