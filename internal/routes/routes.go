package routes

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/bruteguard/internal/auth"
	"github.com/BradenHooton/bruteguard/internal/handlers"
	"github.com/BradenHooton/bruteguard/internal/middleware"
)

// Dependencies bundles what the router needs.
type Dependencies struct {
	AuthHandler      *handlers.AuthHandler
	DashboardHandler *handlers.DashboardHandler
	UserHandler      *handlers.UserHandler
	SettingsHandler  *handlers.SettingsHandler
	Tokens           auth.TokenValidator
	LoginRateLimit   middleware.RateLimitConfig
	Health           handlers.HealthChecker
	Metrics          http.Handler
	Logger           *slog.Logger
}

// RegisterRoutes registers all application routes. The API is served at
// the root and again under /api for dashboards built against that prefix.
func RegisterRoutes(router chi.Router, deps Dependencies) {
	router.Get("/health", handlers.Health(deps.Health, deps.Logger))
	if deps.Metrics != nil {
		router.Handle("/metrics", deps.Metrics)
	}

	// Shared so both mounts draw from one per-IP budget.
	loginLimit := middleware.LoginRateLimit(deps.LoginRateLimit)
	requireSession := auth.AuthMiddleware(deps.Tokens)

	api := func(r chi.Router) {
		// Public routes - no authentication required
		r.With(loginLimit).Post("/login", deps.AuthHandler.Login)

		// Protected routes - authentication required
		r.Group(func(r chi.Router) {
			r.Use(requireSession)

			deps.DashboardHandler.RegisterRoutes(r)
			deps.UserHandler.RegisterRoutes(r)
			deps.SettingsHandler.RegisterRoutes(r)
		})
	}

	router.Group(api)
	router.Route("/api", api)
}
