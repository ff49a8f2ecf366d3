package http

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/trademart/server/internal/auth"
	"github.com/trademart/server/internal/http/handlers"
	"github.com/trademart/server/internal/middleware"
)

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(authHandler *handlers.AuthHandler, sessions *auth.SessionStore, logger *zap.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)

	healthHandler := handlers.NewHealthHandler()
	r.Get("/health", healthHandler.ServeHTTP)

	// Per-IP limiters for the unauthenticated login endpoints. The
	// per-identity issuance window is enforced at the store.
	initLimit := middleware.RateLimitMiddleware(middleware.NewRateLimiter(10*time.Minute, 10), middleware.GetIPKey)
	verifyLimit := middleware.RateLimitMiddleware(middleware.NewRateLimiter(10*time.Minute, 20), middleware.GetIPKey)

	r.Route("/auth", func(r chi.Router) {
		r.With(initLimit).Post("/admin/login-init", authHandler.HandleAdminLoginInit)
		r.With(initLimit).Post("/login-init", authHandler.HandleLoginInit)
		r.With(verifyLimit).Post("/login-verify", authHandler.HandleLoginVerify)
		r.Post("/logout", authHandler.HandleLogout)

		// Protected routes (require a live session)
		r.Group(func(r chi.Router) {
			r.Use(middleware.SessionMiddleware(sessions))
			r.Get("/session", authHandler.HandleSession)
		})
	})

	return r
}
