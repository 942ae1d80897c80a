package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/noah-isme/drivesense-api/internal/config"
	"github.com/noah-isme/drivesense-api/internal/handler"
	"github.com/noah-isme/drivesense-api/internal/middleware"
	"github.com/noah-isme/drivesense-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AuthHandler        *handler.AuthHandler
	DetectionHandler   *handler.DetectionHandler
	HistoryHandler     *handler.HistoryHandler
	EventStreamHandler *handler.EventStreamHandler
	AuthMiddleware     fiber.Handler
	MetricsGatherer    prometheus.Gatherer
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler(deps.MetricsGatherer))

	api := app.Group("/api", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})

	if deps.AuthHandler != nil {
		deps.AuthHandler.Register(api.Group("/auth"))
	}

	auth := deps.AuthMiddleware
	if auth == nil {
		auth = func(c *fiber.Ctx) error {
			return fiber.ErrUnauthorized
		}
	}

	// Everything registered below this point requires a bearer token.
	protected := api.Group("", auth)

	if deps.DetectionHandler != nil {
		detect := protected.Group("/detect", middleware.RateLimit("detect", cfg.DetectRateLimit, time.Minute))
		deps.DetectionHandler.Register(detect)
	}

	if deps.HistoryHandler != nil {
		deps.HistoryHandler.Register(protected)
	}

	if deps.EventStreamHandler != nil {
		deps.EventStreamHandler.Register(protected.Group("/events"))
	}
}
