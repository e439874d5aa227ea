package handlers

import (
	"context"
	"net/http"

	"github.com/BradenHooton/folio-auth/internal/auth"
	"github.com/BradenHooton/folio-auth/internal/models"
	"github.com/BradenHooton/folio-auth/internal/services"
	pkghttp "github.com/BradenHooton/folio-auth/pkg/http"
	"github.com/go-chi/chi/v5"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Register(ctx context.Context, username, email, password string, meta pkghttp.RequestMeta) (*services.AuthResult, error)
	Login(ctx context.Context, email, password string, meta pkghttp.RequestMeta) (*services.AuthResult, error)
	RefreshToken(ctx context.Context, refreshToken string, meta pkghttp.RequestMeta) (*services.AuthResult, error)
	Logout(ctx context.Context, claims *models.TokenClaims, refreshToken string, meta pkghttp.RequestMeta) error
}

// EmailVerificationServiceInterface defines the interface for email verification
type EmailVerificationServiceInterface interface {
	VerifyEmail(ctx context.Context, plainToken string, meta pkghttp.RequestMeta) (string, error)
	ResendVerification(ctx context.Context, email string, meta pkghttp.RequestMeta) (string, error)
}

// ProfileServiceInterface loads the signed-in user's profile
type ProfileServiceInterface interface {
	Me(ctx context.Context, userID string) (*models.PublicUser, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service      AuthServiceInterface
	verification EmailVerificationServiceInterface
	profiles     ProfileServiceInterface
	ipConfig     *pkghttp.IPConfig
}

func NewAuthHandler(service AuthServiceInterface, verification EmailVerificationServiceInterface, profiles ProfileServiceInterface, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:      service,
		verification: verification,
		profiles:     profiles,
		ipConfig:     ipConfig,
	}
}

// Request DTOs. Field formats are checked by the services so every entry
// point applies the same rules.

type RegisterRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Email    string `json:"email" validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=256"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type ResendVerificationRequest struct {
	Email string `json:"email" validate:"required,max=254"`
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.Register(r.Context(), req.Username, req.Email, req.Password, h.meta(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteCreated(w, "User registered successfully. Please check your email to verify your account.", result)
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password, h.meta(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteOK(w, "Login successful", result)
}

// RefreshToken handles POST /auth/refresh
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.RefreshToken(r.Context(), req.RefreshToken, h.meta(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteOK(w, "Token refreshed successfully", result)
}

// Logout handles POST /auth/logout. The body may carry the refresh token
// so it is revoked together with the access token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req LogoutRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := h.service.Logout(r.Context(), claims, req.RefreshToken, h.meta(r)); err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteOK(w, "Logged out successfully", nil)
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	profile, err := h.profiles.Me(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteOK(w, "User profile retrieved", profile)
}

// VerifyEmail handles GET /auth/verify-email/{token}
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		pkghttp.WriteBadRequest(w, "Verification token is required")
		return
	}

	message, err := h.verification.VerifyEmail(r.Context(), token, h.meta(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteOK(w, message, nil)
}

// ResendVerification handles POST /auth/resend-verification
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req ResendVerificationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	message, err := h.verification.ResendVerification(r.Context(), req.Email, h.meta(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteOK(w, message, nil)
}

func (h *AuthHandler) meta(r *http.Request) pkghttp.RequestMeta {
	return pkghttp.MetaFromRequest(r, h.ipConfig)
}
