package handlers

import (
	"context"
	"net/http"

	"github.com/BradenHooton/folio-auth/internal/auth"
	"github.com/BradenHooton/folio-auth/internal/services"
	pkghttp "github.com/BradenHooton/folio-auth/pkg/http"
)

// OTPServiceInterface issues and checks password recovery codes
type OTPServiceInterface interface {
	RequestOTP(ctx context.Context, email string, meta pkghttp.RequestMeta) (string, error)
	ValidateOTP(ctx context.Context, email, code string, meta pkghttp.RequestMeta) (*services.ResetGrant, error)
}

// PasswordServiceInterface changes passwords by reset token or current password
type PasswordServiceInterface interface {
	ResetPassword(ctx context.Context, email, resetToken, newPassword string, meta pkghttp.RequestMeta) (string, error)
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string, meta pkghttp.RequestMeta) (string, error)
}

// PasswordHandler serves the password recovery and change endpoints
type PasswordHandler struct {
	otp       OTPServiceInterface
	passwords PasswordServiceInterface
	ipConfig  *pkghttp.IPConfig
}

func NewPasswordHandler(otp OTPServiceInterface, passwords PasswordServiceInterface, ipConfig *pkghttp.IPConfig) *PasswordHandler {
	return &PasswordHandler{
		otp:       otp,
		passwords: passwords,
		ipConfig:  ipConfig,
	}
}

type RequestOTPRequest struct {
	Email string `json:"email" validate:"required,max=254"`
}

type ValidateOTPRequest struct {
	Email string `json:"email" validate:"required,max=254"`
	OTP   string `json:"otp" validate:"required"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,max=254"`
	ResetToken  string `json:"resetToken" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,max=72"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required,max=256"`
	NewPassword     string `json:"newPassword" validate:"required,max=72"`
}

// RequestOTP handles POST /auth/request-otp
func (h *PasswordHandler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req RequestOTPRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	message, err := h.otp.RequestOTP(r.Context(), req.Email, h.meta(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteOK(w, message, nil)
}

// ValidateOTP handles POST /auth/validate-otp
func (h *PasswordHandler) ValidateOTP(w http.ResponseWriter, r *http.Request) {
	var req ValidateOTPRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	grant, err := h.otp.ValidateOTP(r.Context(), req.Email, req.OTP, h.meta(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteOK(w, "OTP validated successfully", grant)
}

// ResetPassword handles POST /auth/reset-password
func (h *PasswordHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	message, err := h.passwords.ResetPassword(r.Context(), req.Email, req.ResetToken, req.NewPassword, h.meta(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteOK(w, message, nil)
}

// ChangePassword handles POST /auth/change-password
func (h *PasswordHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req ChangePasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	message, err := h.passwords.ChangePassword(r.Context(), claims.UserID, req.CurrentPassword, req.NewPassword, h.meta(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteOK(w, message, nil)
}

func (h *PasswordHandler) meta(r *http.Request) pkghttp.RequestMeta {
	return pkghttp.MetaFromRequest(r, h.ipConfig)
}
