package routes

import (
	"net/http"

	"github.com/BradenHooton/folio-auth/internal/handlers"
	"github.com/BradenHooton/folio-auth/internal/middleware"
	pkghttp "github.com/BradenHooton/folio-auth/pkg/http"
	"github.com/go-chi/chi/v5"
)

// Handlers groups everything the router mounts
type Handlers struct {
	Auth     *handlers.AuthHandler
	Password *handlers.PasswordHandler
	Health   *handlers.HealthHandler
}

// RegisterRoutes registers all application routes. authenticate guards the
// endpoints that need a signed-in user; rateLimit is the per-IP throttle
// applied to every auth endpoint.
func RegisterRoutes(router chi.Router, h Handlers, authenticate, rateLimit func(http.Handler) http.Handler) {
	router.Get("/health", h.Health.Health)

	router.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(rateLimit)

		// Public routes - no authentication required
		r.Post("/register", h.Auth.Register)
		r.Post("/login", h.Auth.Login)
		r.Post("/refresh", h.Auth.RefreshToken)
		r.Get("/verify-email/{token}", h.Auth.VerifyEmail)
		r.Post("/resend-verification", h.Auth.ResendVerification)

		// Password recovery
		r.Post("/request-otp", h.Password.RequestOTP)
		r.Post("/validate-otp", h.Password.ValidateOTP)
		r.Post("/reset-password", h.Password.ResetPassword)

		// Protected routes - authentication required
		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Get("/me", h.Auth.Me)
			r.Post("/logout", h.Auth.Logout)
			r.Post("/change-password", h.Password.ChangePassword)
		})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		pkghttp.WriteNotFound(w, "Endpoint not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		pkghttp.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	})
}

// NewRateLimit builds the per-IP throttle from config
func NewRateLimit(requestsPerMinute int, ipConfig *pkghttp.IPConfig) func(http.Handler) http.Handler {
	return middleware.RateLimitByIP(middleware.RateLimitConfig{
		RequestsPerMinute: requestsPerMinute,
		IPConfig:          ipConfig,
	})
}
