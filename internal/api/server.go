// Package api assembles the HTTP application: middleware chain and routes.
package api

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/platform-factory/backend/internal/api/apierror"
	"github.com/platform-factory/backend/internal/api/handlers"
	"github.com/platform-factory/backend/internal/build"
	"github.com/platform-factory/backend/internal/codegen"
	"github.com/platform-factory/backend/internal/metrics"
	"github.com/platform-factory/backend/internal/middleware/auth"
	"github.com/platform-factory/backend/internal/middleware/ratelimit"
	"github.com/platform-factory/backend/internal/middleware/security"
	"github.com/platform-factory/backend/internal/middleware/trace"
	"github.com/platform-factory/backend/internal/middleware/validation"
	"github.com/platform-factory/backend/internal/pipeline"
	"github.com/platform-factory/backend/pkg/config"
)

const basePath = "/api/v1"

// Check is a named readiness probe.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

type Dependencies struct {
	Config        *config.Config
	Pipeline      *pipeline.Pipeline
	Builder       *build.Builder
	Authenticator *auth.Authenticator
	RateLimiter   *ratelimit.RateLimiter
	Auditor       *trace.Auditor
	// AuditLog is nil when the audit trail is disabled.
	AuditLog     handlers.AuditLog
	ProviderName string
	Checks       []Check
	// AccessLog turns on fiber's request logger.
	AccessLog bool
}

func NewApp(d Dependencies) *fiber.App {
	cfg := d.Config

	app := fiber.New(fiber.Config{
		AppName:      "platform-factory",
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
		ErrorHandler: apierror.Handler,
	})

	app.Use(recover.New())
	app.Use(d.Auditor.Middleware())
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.Development,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  joinOrigins(cfg.Server.AllowedOrigins),
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, " + trace.HeaderTraceID,
		AllowMethods:  "GET, POST, OPTIONS",
		ExposeHeaders: trace.HeaderTraceID + ", Retry-After, Content-Disposition",
	}))
	if d.AccessLog {
		app.Use(fiberlogger.New())
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})
	app.Get("/ready", readiness(d.Checks))
	if cfg.Metrics.Enabled {
		app.Get("/metrics", metrics.MetricsHandler())
	}

	capabilities := handlers.NewCapabilities(d.ProviderName, handlers.Limits{
		MaxTextLength:       cfg.Validation.MaxTextLength,
		RequestsPerWindow:   cfg.RateLimit.MaxRequests,
		WindowSeconds:       cfg.RateLimit.WindowSec,
		LLMTimeoutSeconds:   cfg.Pipeline.LLMTimeoutSec,
		MaxFeaturesPerBuild: codegen.MaxFeatures,
	})
	analysisHandler := handlers.NewAnalysisHandler(d.Pipeline, capabilities, d.AuditLog)
	platformHandler := handlers.NewPlatformHandler(d.Builder)
	wsHandler := handlers.NewWebSocketHandler(d.Pipeline, d.Auditor, d.RateLimiter, cfg.Validation.MaxTextLength)

	api := app.Group(basePath,
		d.Authenticator.Middleware(),
		d.RateLimiter.Middleware(),
		validation.Middleware(validation.Config{
			MaxTextLength: cfg.Validation.MaxTextLength,
			TextRoutes:    []string{basePath + "/nlp/"},
		}),
	)

	nlp := api.Group("/nlp", d.Authenticator.RequireOwner())
	nlp.Post("/analyze", analysisHandler.Analyze)
	nlp.Post("/sector-context", analysisHandler.SectorContext)
	nlp.Post("/generate-specification", analysisHandler.GenerateSpecification)
	nlp.Post("/full-analysis", analysisHandler.FullAnalysis)
	nlp.Get("/sectors", analysisHandler.Sectors)
	nlp.Get("/capabilities", analysisHandler.Capabilities)
	nlp.Get("/audit", analysisHandler.Audit)
	nlp.Get("/stream", wsHandler.Upgrade, websocket.New(wsHandler.HandleConnection))

	platforms := api.Group("/platforms")
	platforms.Post("/build", platformHandler.Build)
	platforms.Get("/builds/:buildId", platformHandler.GetBuild)
	platforms.Get("/download/:buildId", platformHandler.Download)

	app.Use(func(c *fiber.Ctx) error {
		return apierror.NotFound(c, "Route not found")
	})

	return app
}

func readiness(checks []Check) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		status := "ready"
		results := make(map[string]string, len(checks))
		for _, check := range checks {
			if err := check.Probe(ctx); err != nil {
				status = "not_ready"
				results[check.Name] = err.Error()
				continue
			}
			results[check.Name] = "ok"
		}

		code := fiber.StatusOK
		if status != "ready" {
			code = fiber.StatusServiceUnavailable
		}
		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": results,
		})
	}
}

func joinOrigins(origins []string) string {
	if len(origins) == 0 {
		return "*"
	}
	return strings.Join(origins, ", ")
}
