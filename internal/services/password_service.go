package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/folio-auth/internal/audit"
	"github.com/BradenHooton/folio-auth/internal/models"
	pkgauth "github.com/BradenHooton/folio-auth/pkg/auth"
	pkghttp "github.com/BradenHooton/folio-auth/pkg/http"
)

const (
	PasswordResetMessage   = "Password has been reset successfully. Please log in with your new password."
	PasswordChangedMessage = "Password changed successfully. Please log in again."

	msgInvalidResetToken = "Invalid reset token"
	msgResetTokenExpired = "Reset token expired. Please request a new OTP."
	msgSamePassword      = "New password must be different from your current password"
)

// PasswordService completes password recovery and handles authenticated
// password changes. Both bump the session version.
type PasswordService struct {
	users      UserRepository
	limits     *RateLimitService
	email      EmailService
	audit      *AuditService
	bcryptCost int
	logger     *slog.Logger
	now        func() time.Time
}

func NewPasswordService(users UserRepository, limits *RateLimitService, email EmailService, audit *AuditService, bcryptCost int, logger *slog.Logger) *PasswordService {
	return &PasswordService{
		users:      users,
		limits:     limits,
		email:      email,
		audit:      audit,
		bcryptCost: bcryptCost,
		logger:     logger,
		now:        time.Now,
	}
}

// ResetPassword exchanges a reset token for a new password
func (s *PasswordService) ResetPassword(ctx context.Context, email, resetToken, newPassword string, meta pkghttp.RequestMeta) (string, error) {
	email, err := pkgauth.NormalizeEmail(email)
	if err != nil {
		return "", models.BadRequest("Invalid email format")
	}
	if err := pkgauth.ValidateResetToken(resetToken); err != nil {
		return "", models.BadRequest("Invalid reset token format")
	}
	if err := passwordPolicyError(newPassword); err != nil {
		return "", err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", models.NotFound("User not found")
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	fail := func(reason string, err error) (string, error) {
		s.audit.Record(ctx, meta, audit.Event{Type: audit.EventPasswordReset, UserID: user.ID, Email: email, Reason: reason})
		return "", err
	}

	tokenHash := pkgauth.HashToken(resetToken)
	if !user.HasResetToken() {
		return fail("no_reset_token", models.Unauthorized(msgInvalidResetToken))
	}
	if !pkgauth.TokenHashEqual(tokenHash, *user.ResetTokenHash) {
		s.clearResetToken(ctx, user.ID)
		return fail("reset_token_mismatch", models.Unauthorized(msgInvalidResetToken))
	}
	if user.ResetTokenExpired(s.now()) {
		s.clearResetToken(ctx, user.ID)
		return fail("reset_token_expired", models.Unauthorized(msgResetTokenExpired))
	}

	if pkgauth.ComparePassword(user.PasswordHash, newPassword) == nil {
		return fail("password_reused", models.BadRequest(msgSamePassword))
	}

	hash, err := pkgauth.HashWithCost(newPassword, s.bcryptCost)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	version, err := s.users.ConsumeResetToken(ctx, user.ID, tokenHash, hash)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Spent or expired by a concurrent request
			return fail("reset_token_consumed", models.Unauthorized(msgInvalidResetToken))
		}
		s.logger.Error("failed to reset password", slog.String("user_id", user.ID), slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	s.limits.ResetLogin(ctx, email)
	s.notifyChanged(ctx, user)

	s.logger.Info("password reset", slog.String("user_id", user.ID), slog.Int("session_version", version))
	s.audit.Record(ctx, meta, audit.Event{Type: audit.EventPasswordReset, UserID: user.ID, Email: email, Success: true})
	return PasswordResetMessage, nil
}

// ChangePassword replaces the password of a signed-in user after checking
// the current one
func (s *PasswordService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string, meta pkghttp.RequestMeta) (string, error) {
	if currentPassword == "" {
		return "", models.BadRequest("Current password is required")
	}
	if err := passwordPolicyError(newPassword); err != nil {
		return "", err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", models.Unauthorized("User not found")
		}
		s.logger.Error("failed to get user", slog.String("user_id", userID), slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	fail := func(reason string, err error) (string, error) {
		s.audit.Record(ctx, meta, audit.Event{Type: audit.EventPasswordChanged, UserID: user.ID, Email: user.Email, Reason: reason})
		return "", err
	}

	if pkgauth.ComparePassword(user.PasswordHash, currentPassword) != nil {
		return fail("invalid_current_password", models.Unauthorized("Current password is incorrect"))
	}
	if currentPassword == newPassword || pkgauth.ComparePassword(user.PasswordHash, newPassword) == nil {
		return fail("password_reused", models.BadRequest(msgSamePassword))
	}

	hash, err := pkgauth.HashWithCost(newPassword, s.bcryptCost)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	version, err := s.users.UpdatePassword(ctx, user.ID, hash)
	if err != nil {
		s.logger.Error("failed to update password", slog.String("user_id", user.ID), slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	s.notifyChanged(ctx, user)

	s.logger.Info("password changed", slog.String("user_id", user.ID), slog.Int("session_version", version))
	s.audit.Record(ctx, meta, audit.Event{Type: audit.EventPasswordChanged, UserID: user.ID, Email: user.Email, Success: true})
	return PasswordChangedMessage, nil
}

func (s *PasswordService) clearResetToken(ctx context.Context, userID string) {
	if err := s.users.ClearResetToken(ctx, userID); err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to clear reset token", slog.String("user_id", userID), slog.Any("error", err))
	}
}

func (s *PasswordService) notifyChanged(ctx context.Context, user *models.User) {
	if err := s.email.SendPasswordChanged(ctx, user.Email, s.now()); err != nil {
		s.logger.Error("failed to send password changed email", slog.String("user_id", user.ID), slog.Any("error", err))
	}
}

// passwordPolicyError converts a policy failure into a 400 carrying every
// failed rule
func passwordPolicyError(password string) error {
	err := pkgauth.ValidatePassword(password)
	if err == nil {
		return nil
	}
	var policyErr *pkgauth.PasswordValidationError
	if errors.As(err, &policyErr) {
		return models.BadRequest("Password does not meet requirements", policyErr.Errors...)
	}
	return models.BadRequest(err.Error())
}
