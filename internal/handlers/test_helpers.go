package handlers

import (
	"context"

	"github.com/BradenHooton/folio-auth/internal/models"
	"github.com/BradenHooton/folio-auth/internal/services"
	pkghttp "github.com/BradenHooton/folio-auth/pkg/http"
)

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	RegisterFunc     func(ctx context.Context, username, email, password string, meta pkghttp.RequestMeta) (*services.AuthResult, error)
	LoginFunc        func(ctx context.Context, email, password string, meta pkghttp.RequestMeta) (*services.AuthResult, error)
	RefreshTokenFunc func(ctx context.Context, refreshToken string, meta pkghttp.RequestMeta) (*services.AuthResult, error)
	LogoutFunc       func(ctx context.Context, claims *models.TokenClaims, refreshToken string, meta pkghttp.RequestMeta) error
}

func (m *MockAuthService) Register(ctx context.Context, username, email, password string, meta pkghttp.RequestMeta) (*services.AuthResult, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, username, email, password, meta)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAuthService) Login(ctx context.Context, email, password string, meta pkghttp.RequestMeta) (*services.AuthResult, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, email, password, meta)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAuthService) RefreshToken(ctx context.Context, refreshToken string, meta pkghttp.RequestMeta) (*services.AuthResult, error) {
	if m.RefreshTokenFunc != nil {
		return m.RefreshTokenFunc(ctx, refreshToken, meta)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAuthService) Logout(ctx context.Context, claims *models.TokenClaims, refreshToken string, meta pkghttp.RequestMeta) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, claims, refreshToken, meta)
	}
	return nil
}

// MockEmailVerificationService implements EmailVerificationServiceInterface for testing
type MockEmailVerificationService struct {
	VerifyEmailFunc        func(ctx context.Context, plainToken string, meta pkghttp.RequestMeta) (string, error)
	ResendVerificationFunc func(ctx context.Context, email string, meta pkghttp.RequestMeta) (string, error)
}

func (m *MockEmailVerificationService) VerifyEmail(ctx context.Context, plainToken string, meta pkghttp.RequestMeta) (string, error) {
	if m.VerifyEmailFunc != nil {
		return m.VerifyEmailFunc(ctx, plainToken, meta)
	}
	return services.EmailVerifiedMessage, nil
}

func (m *MockEmailVerificationService) ResendVerification(ctx context.Context, email string, meta pkghttp.RequestMeta) (string, error) {
	if m.ResendVerificationFunc != nil {
		return m.ResendVerificationFunc(ctx, email, meta)
	}
	return services.VerificationResentMessage, nil
}

// MockProfileService implements ProfileServiceInterface for testing
type MockProfileService struct {
	MeFunc func(ctx context.Context, userID string) (*models.PublicUser, error)
}

func (m *MockProfileService) Me(ctx context.Context, userID string) (*models.PublicUser, error) {
	if m.MeFunc != nil {
		return m.MeFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

// MockOTPService implements OTPServiceInterface for testing
type MockOTPService struct {
	RequestOTPFunc  func(ctx context.Context, email string, meta pkghttp.RequestMeta) (string, error)
	ValidateOTPFunc func(ctx context.Context, email, code string, meta pkghttp.RequestMeta) (*services.ResetGrant, error)
}

func (m *MockOTPService) RequestOTP(ctx context.Context, email string, meta pkghttp.RequestMeta) (string, error) {
	if m.RequestOTPFunc != nil {
		return m.RequestOTPFunc(ctx, email, meta)
	}
	return services.OTPRequestedMessage, nil
}

func (m *MockOTPService) ValidateOTP(ctx context.Context, email, code string, meta pkghttp.RequestMeta) (*services.ResetGrant, error) {
	if m.ValidateOTPFunc != nil {
		return m.ValidateOTPFunc(ctx, email, code, meta)
	}
	return nil, models.ErrInternalServer
}

// MockPasswordService implements PasswordServiceInterface for testing
type MockPasswordService struct {
	ResetPasswordFunc  func(ctx context.Context, email, resetToken, newPassword string, meta pkghttp.RequestMeta) (string, error)
	ChangePasswordFunc func(ctx context.Context, userID, currentPassword, newPassword string, meta pkghttp.RequestMeta) (string, error)
}

func (m *MockPasswordService) ResetPassword(ctx context.Context, email, resetToken, newPassword string, meta pkghttp.RequestMeta) (string, error) {
	if m.ResetPasswordFunc != nil {
		return m.ResetPasswordFunc(ctx, email, resetToken, newPassword, meta)
	}
	return services.PasswordResetMessage, nil
}

func (m *MockPasswordService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string, meta pkghttp.RequestMeta) (string, error) {
	if m.ChangePasswordFunc != nil {
		return m.ChangePasswordFunc(ctx, userID, currentPassword, newPassword, meta)
	}
	return services.PasswordChangedMessage, nil
}

// PingerFunc adapts a function to Pinger
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}
