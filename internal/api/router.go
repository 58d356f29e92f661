// Package api provides the HTTP API for Pulseboard.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/pulseboard/pulseboard/internal/api/handler"
	"github.com/pulseboard/pulseboard/internal/api/middleware"
	"github.com/pulseboard/pulseboard/internal/export"
	"github.com/pulseboard/pulseboard/internal/report"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version       string
	BuildTime     string
	Logger        zerolog.Logger
	ServiceName   string
	Metrics       *middleware.Metrics
	TokenService  middleware.TokenValidator
	ExportService *export.Service
	ReportService *report.Service

	// Checks probe backing subsystems for the readiness and status endpoints.
	Checks []handler.DependencyCheck
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "pulseboard-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Checks...)
	exportHandler := handler.NewExportHandler(cfg.ExportService)
	reportHandler := handler.NewReportHandler(cfg.ReportService)

	// Create auth middleware
	authMiddleware := middleware.Auth(cfg.TokenService)

	// Create rate limit middleware for different endpoint categories
	expensiveRateLimit := middleware.RateLimitByUser(middleware.ExpensiveRateLimit) // 30 req/min
	standardRateLimit := middleware.RateLimitByUser(middleware.StandardRateLimit)   // 100 req/min

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public) - IP-keyed rate limiting
		r.Route("/ops", func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(middleware.StandardRateLimit))
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			// Status endpoint requires authentication
			r.With(authMiddleware).Get("/status", opsHandler.SystemStatus)
		})

		// Export endpoints (authenticated) - user-based rate limiting
		r.Route("/exports", func(r chi.Router) {
			r.Use(authMiddleware)

			// Creating an export kicks off producer work
			r.With(expensiveRateLimit).Post("/", exportHandler.CreateExport)

			r.With(standardRateLimit).Get("/", exportHandler.ListExports)
			r.Route("/{exportId}", func(r chi.Router) {
				r.Use(standardRateLimit)
				r.Get("/", exportHandler.GetExport)
				r.Get("/download", exportHandler.DownloadExport)
				r.Patch("/cancel", exportHandler.CancelExport)
				r.Post("/retry", exportHandler.RetryExport)
			})
		})

		// Report endpoints (authenticated) - user-based rate limiting
		r.Route("/reports", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(standardRateLimit)
			r.Get("/", reportHandler.ListReports)
			r.Post("/", reportHandler.CreateReport)
			r.Route("/{reportId}", func(r chi.Router) {
				r.Get("/", reportHandler.GetReport)
				r.Patch("/", reportHandler.UpdateReport)
				r.Delete("/", reportHandler.DeleteReport)
			})
		})
	})

	return r
}
