package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/folio-auth/internal/models"
	pkghttp "github.com/BradenHooton/folio-auth/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// UserContextKey is the key for storing user claims in context
	UserContextKey contextKey = "user"
)

// TokenRevocationChecker reports whether a token id has been revoked
type TokenRevocationChecker interface {
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// UserRepository loads the current user state for session checks
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

type MiddlewareConfig struct {
	// FailClosed denies access when the revocation store cannot be reached
	FailClosed bool
}

// Authenticator builds the bearer-token middleware
type Authenticator struct {
	tokens     *TokenManager
	revocation TokenRevocationChecker
	users      UserRepository
	config     MiddlewareConfig
	logger     *slog.Logger
}

func NewAuthenticator(tokens *TokenManager, revocation TokenRevocationChecker, users UserRepository, config MiddlewareConfig, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		tokens:     tokens,
		revocation: revocation,
		users:      users,
		config:     config,
		logger:     logger,
	}
}

// Middleware validates the access token, rejects revoked or stale sessions
// and injects the claims into the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearerToken(r)
		if !ok {
			pkghttp.WriteUnauthorized(w, "Authentication required")
			return
		}

		claims, err := a.tokens.ValidateToken(tokenString)
		if err != nil {
			pkghttp.WriteUnauthorized(w, "Invalid or expired token")
			return
		}

		// Refresh tokens are only accepted by /auth/refresh
		if claims.Type != models.TokenTypeAccess {
			pkghttp.WriteUnauthorized(w, "Invalid token type")
			return
		}

		if a.revocation != nil {
			revoked, err := a.revocation.IsTokenRevoked(r.Context(), claims.ID)
			if err != nil {
				a.logger.Error("token revocation check failed", slog.Any("error", err))
				if a.config.FailClosed {
					pkghttp.WriteServiceUnavailable(w, "Unable to verify token status")
					return
				}
			}
			if revoked {
				pkghttp.WriteUnauthorized(w, "Token has been revoked")
				return
			}
		}

		user, err := a.users.GetByID(r.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				pkghttp.WriteUnauthorized(w, "Invalid or expired token")
				return
			}
			a.logger.Error("failed to load user for session check", slog.Any("error", err))
			pkghttp.WriteInternalError(w, "Internal server error")
			return
		}

		if user.SessionVersion != claims.SessionVersion {
			pkghttp.WriteUnauthorized(w, "Session expired. Please log in again.")
			return
		}
		if user.AccountLocked {
			pkghttp.WriteUnauthorized(w, "Account is locked")
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// GetUserFromContext extracts user claims from request context
func GetUserFromContext(r *http.Request) *models.TokenClaims {
	return ClaimsFromContext(r.Context())
}

func ClaimsFromContext(ctx context.Context) *models.TokenClaims {
	claims, ok := ctx.Value(UserContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}

// WithClaims stores claims in ctx; handlers under test use it in place of the middleware
func WithClaims(ctx context.Context, claims *models.TokenClaims) context.Context {
	return context.WithValue(ctx, UserContextKey, claims)
}

// TokenExpiry returns when the claims stop being valid, or the zero time
func TokenExpiry(claims *models.TokenClaims) time.Time {
	if claims == nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
