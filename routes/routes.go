package routes

import (
	"net/http"

	"github.com/RyanVerWey/Tech-Talk/app"
	"github.com/RyanVerWey/Tech-Talk/internal/observability"
	"github.com/RyanVerWey/Tech-Talk/utils"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	cfg := deps.Config
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	if cfg.Server.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if cfg.Server.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	}
	r.Use(observability.HTTPMetrics)

	// CORS is restricted to the client; credentials carry the refresh cookie
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.Client.URL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		// Health check endpoints
		r.Get("/health", deps.Health.HandleHealth)
		r.Get("/health/ready", deps.Health.HandleReadiness)

		r.Route("/auth", func(r chi.Router) {
			r.Get("/status", deps.Health.HandleStatus)

			// OAuth and refresh are throttled per client address
			r.Group(func(r chi.Router) {
				r.Use(deps.AuthRateLimit.Limit)
				r.Get("/google", deps.AuthHandler.HandleLogin)
				r.Get("/google/callback", deps.AuthHandler.HandleCallback)
				r.Post("/refresh", deps.AuthHandler.HandleRefresh)
			})

			r.Group(func(r chi.Router) {
				r.Use(deps.AuthMiddleware.RequireAuth)
				r.Get("/me", deps.Profiles.HandleMe)
				r.Get("/events", deps.Profiles.HandleListEvents)
				r.Post("/logout", deps.AuthHandler.HandleLogout)
				r.Post("/logout-all", deps.AuthHandler.HandleLogoutAll)
			})
		})

		r.Route("/profile", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Get("/", deps.Profiles.HandleGetProfile)
			r.Put("/", deps.Profiles.HandleUpdateProfile)
		})

		r.Route("/users/{id}", func(r chi.Router) {
			r.With(deps.AuthMiddleware.OptionalAuth).Get("/", deps.Profiles.HandleGetPublicProfile)
			r.With(
				deps.AuthMiddleware.RequireAuth,
				deps.AuthMiddleware.RequireOwnershipOrAdmin("id"),
			).Get("/sessions", deps.Profiles.HandleListSessions)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusNotFound, "NOT_FOUND", "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})

	return r
}
