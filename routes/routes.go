package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sqltown/sqltown-server/app"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: deps.Config.CORS.AllowCredentials,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleLiveness)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", deps.HealthHandler.HandleHealth)

		r.Route("/auth", func(r chi.Router) {
			// Public endpoint; claims are bound when a valid token is present
			r.With(deps.AuthMiddleware.OptionalAuth).Get("/public", deps.AuthHandler.HandlePublic)

			// Token verification only, no database interaction
			r.With(deps.AuthMiddleware.RequireAuth).Post("/logout", deps.AuthHandler.HandleLogout)

			// Full verification plus user sync on every request
			r.Group(func(r chi.Router) {
				r.Use(deps.AuthMiddleware.RequireUser)
				r.Get("/me", deps.AuthHandler.HandleGetProfile)
				r.Put("/me", deps.AuthHandler.HandleUpdateProfile)
				r.Delete("/me", deps.AuthHandler.HandleDeleteAccount)
			})
		})

		// Uploads require a valid token but not a fresh user sync
		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Post("/upload-url", deps.UploadHandler.HandleGenerateUploadURL)
			r.Post("/upload", deps.UploadHandler.HandleDirectUpload)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}
