package routes

import (
	"net/http"

	"github.com/calebwray/vaultgate/internal/handlers"
	"github.com/calebwray/vaultgate/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	mfaHandler *handlers.MFAHandler,
	deviceHandler *handlers.DeviceHandler,
	sessions middleware.SessionResolver,
	healthz http.HandlerFunc,
) {
	// Rate limiting config for auth endpoints
	rateLimitConfig := middleware.DefaultAuthRateLimit()

	// Public routes - no session required
	router.Get("/healthz", healthz)
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/register", authHandler.Register)
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/authenticate", authHandler.Authenticate)

	// Protected routes - active session required
	router.Group(func(r chi.Router) {
		r.Use(middleware.SessionAuth(sessions))

		// Session lifecycle
		r.Get("/auth/session", authHandler.GetSession)
		r.Put("/auth/session/settings", authHandler.UpdateSessionSettings)
		r.Post("/auth/logout", authHandler.Logout)

		// Factor enrollment
		r.Post("/mfa/pin", mfaHandler.SetPIN)
		r.Post("/mfa/totp/setup", mfaHandler.SetupTOTP)
		r.Post("/mfa/totp/verify", mfaHandler.VerifyTOTP)
		r.Post("/mfa/security-question", mfaHandler.SetSecurityQuestion)
		r.Post("/mfa/recovery", mfaHandler.EnableRecovery)

		// Trusted device registry
		r.Get("/devices", deviceHandler.List)
		r.Delete("/devices/{fingerprint}", deviceHandler.Remove)
	})
}
