// Package main provides the entrypoint for the Pulseboard API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pulseboard/pulseboard/internal/api"
	"github.com/pulseboard/pulseboard/internal/api/handler"
	"github.com/pulseboard/pulseboard/internal/api/middleware"
	"github.com/pulseboard/pulseboard/internal/auth"
	"github.com/pulseboard/pulseboard/internal/database"
	"github.com/pulseboard/pulseboard/internal/export"
	"github.com/pulseboard/pulseboard/internal/export/producer"
	"github.com/pulseboard/pulseboard/internal/report"
	"github.com/pulseboard/pulseboard/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "pulseboard-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting Pulseboard API")

	// Get configuration from environment
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
	telemetryEnabled := os.Getenv("OTEL_ENABLED") == "true"

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    env,
		OTLPEndpoint:   otlpEndpoint,
		Enabled:        telemetryEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if telemetryEnabled {
		log.Info().
			Str("otlp_endpoint", otlpEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize HTTP metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}
	exportMetrics, err := export.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize export metrics")
		os.Exit(1)
	}

	// Connect to database
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("database connected")

	// Connect to redis; the cache degrades to misses if it is unreachable
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	defer rdb.Close()
	log.Info().Str("addr", redisAddr).Msg("redis client initialized")

	// Initialize JWT service (get signing key from environment)
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		jwtSigningKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}

	jwtIssuer := os.Getenv("JWT_ISSUER")
	if jwtIssuer == "" {
		jwtIssuer = "https://api.pulseboard.io"
	}
	jwtAudience := os.Getenv("JWT_AUDIENCE")
	if jwtAudience == "" {
		jwtAudience = "pulseboard-api"
	}

	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey: jwtSigningKey,
		Issuer:     jwtIssuer,
		Audience:   jwtAudience,
	})

	// Initialize the export pipeline
	artifactDir := os.Getenv("EXPORT_ARTIFACT_DIR")

	runner := export.NewRunner(export.RunnerConfig{Logger: log})
	exportRepo := export.NewPostgresRepository(pool)
	exportService := export.NewService(export.ServiceConfig{
		Repository: exportRepo,
		Cache:      export.NewRedisCache(rdb),
		Producer:   producer.NewGenerator(producer.NewPostgresSource(pool), log),
		Scheduler:  runner,
		Logger:     log,
		Metrics:    exportMetrics,
		TempDir:    artifactDir,
	})
	log.Info().Msg("export service initialized")

	// Worker pool plus startup reconciliation for jobs left over from a
	// previous run. The requeue loop picks up jobs whose enqueue was
	// rejected by a full buffer.
	runnerCtx, stopRunner := context.WithCancel(ctx)
	defer stopRunner()
	runner.Start(runnerCtx, exportService)
	if err := runner.Reconcile(ctx, exportRepo); err != nil {
		log.Error().Err(err).Msg("failed to reconcile export jobs")
	}
	go runner.RunRequeue(runnerCtx, exportRepo)

	// In-process expiry sweep; the worker binary drives the same sweep from
	// Pub/Sub for deployments that scale the API to zero.
	sweeper := export.NewExpirySweeper(export.SweeperConfig{
		Service: exportService,
		Logger:  log,
	})
	go sweeper.Run(runnerCtx)

	// Initialize report repository and service
	reportService := report.NewService(report.ServiceConfig{
		Repository: report.NewPostgresRepository(pool),
		Cache:      report.NewRedisCache(rdb),
		Logger:     log,
	})
	log.Info().Msg("report service initialized")

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:       Version,
		BuildTime:     BuildTime,
		Logger:        log,
		ServiceName:   serviceName,
		Metrics:       httpMetrics,
		TokenService:  jwtService,
		ExportService: exportService,
		ReportService: reportService,
		Checks: []handler.DependencyCheck{
			{Name: "database", Check: pool.Ping},
			{Name: "redis", Check: func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			}},
		},
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	// Stop the worker pool and let in-flight jobs finish
	stopRunner()
	runner.Wait()

	log.Info().Msg("server stopped")
}
