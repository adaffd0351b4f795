package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/qr-credential-service/internal/api/http/handlers"
	"github.com/spec-kit/qr-credential-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Scan           *handlers.ScanHandler
	Admin          *handlers.AdminHandler
	Devices        *handlers.DevicesHandler
	AuthMiddleware *auth.AuthMiddleware
	RateLimiter    fiber.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/devices/:id/token", cfg.Devices.IssueToken)

	scanGroup := app.Group("/scan", cfg.AuthMiddleware.Handle, auth.RequireAnyActor())
	if cfg.RateLimiter != nil {
		scanGroup.Use(cfg.RateLimiter)
	}
	scanGroup.Post("/parse", cfg.Scan.Parse)
	scanGroup.Post("/check", cfg.Scan.Check)
	scanGroup.Post("/validate", cfg.Scan.Validate)

	adminGroup := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireAdmin())
	adminGroup.Get("/qr", cfg.Admin.List)
	adminGroup.Post("/qr/:token/revoke", cfg.Admin.Revoke)
	adminGroup.Post("/qr/:token/suspend", cfg.Admin.Suspend)
	adminGroup.Post("/qr/:token/reactivate", cfg.Admin.Reactivate)
	adminGroup.Get("/qr/:token/scans", cfg.Admin.ScanHistory)
	adminGroup.Get("/stats/scans", cfg.Admin.ScanStats)
	adminGroup.Post("/devices", cfg.Devices.Register)
}
