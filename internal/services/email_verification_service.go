package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/folio-auth/internal/audit"
	"github.com/BradenHooton/folio-auth/internal/models"
	pkgauth "github.com/BradenHooton/folio-auth/pkg/auth"
	pkghttp "github.com/BradenHooton/folio-auth/pkg/http"
	pkglogger "github.com/BradenHooton/folio-auth/pkg/logger"
)

const (
	EmailVerifiedMessage      = "Email verified successfully"
	VerificationResentMessage = "If this email is registered and not yet verified, a verification email has been sent."

	msgInvalidVerificationToken = "Invalid or expired verification token"
)

// EmailVerificationRepository defines the interface for email verification token operations
type EmailVerificationRepository interface {
	Create(ctx context.Context, userID, tokenHash, email string, expiresAt time.Time) (*models.EmailVerificationToken, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.EmailVerificationToken, error)
	Consume(ctx context.Context, tokenID, userID string) error
	DeleteByUserID(ctx context.Context, userID string) error
}

// EmailVerificationService handles email verification business logic
type EmailVerificationService struct {
	tokens      EmailVerificationRepository
	users       UserRepository
	limits      *RateLimitService
	email       EmailService
	audit       *AuditService
	tokenExpiry time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

func NewEmailVerificationService(
	tokens EmailVerificationRepository,
	users UserRepository,
	limits *RateLimitService,
	email EmailService,
	audit *AuditService,
	tokenExpiry time.Duration,
	logger *slog.Logger,
) *EmailVerificationService {
	return &EmailVerificationService{
		tokens:      tokens,
		users:       users,
		limits:      limits,
		email:       email,
		audit:       audit,
		tokenExpiry: tokenExpiry,
		logger:      logger,
		now:         time.Now,
	}
}

// SendVerification replaces any outstanding link for user with a new one
// and emails it
func (s *EmailVerificationService) SendVerification(ctx context.Context, user *models.User) error {
	plainToken, err := pkgauth.GenerateURLToken()
	if err != nil {
		return err
	}
	expiresAt := s.now().Add(s.tokenExpiry)

	if err := s.tokens.DeleteByUserID(ctx, user.ID); err != nil {
		s.logger.Error("failed to delete old verification tokens", slog.String("user_id", user.ID), slog.Any("error", err))
	}

	if _, err := s.tokens.Create(ctx, user.ID, pkgauth.HashToken(plainToken), user.Email, expiresAt); err != nil {
		return fmt.Errorf("failed to create verification token: %w", err)
	}

	if err := s.email.SendVerificationEmail(ctx, user.Email, plainToken, expiresAt); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}

	s.logger.Info("verification email sent", slog.String("user_id", user.ID), pkglogger.EmailAttr(user.Email))
	return nil
}

// VerifyEmail spends a verification link and marks its owner verified
func (s *EmailVerificationService) VerifyEmail(ctx context.Context, plainToken string, meta pkghttp.RequestMeta) (string, error) {
	if plainToken == "" || len(plainToken) > 128 {
		return "", models.BadRequest(msgInvalidVerificationToken)
	}

	token, err := s.tokens.GetByTokenHash(ctx, pkgauth.HashToken(plainToken))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("verification token not found")
			return "", models.BadRequest(msgInvalidVerificationToken)
		}
		s.logger.Error("failed to retrieve verification token", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	fail := func(reason string) (string, error) {
		s.audit.Record(ctx, meta, audit.Event{Type: audit.EventEmailVerified, UserID: token.UserID, Email: token.Email, Reason: reason})
		return "", models.BadRequest(msgInvalidVerificationToken)
	}

	if token.IsUsed() {
		s.logger.Warn("attempt to reuse verification token", slog.String("token_id", token.ID))
		return fail("token_used")
	}
	if token.IsExpired(s.now()) {
		return fail("token_expired")
	}

	if err := s.tokens.Consume(ctx, token.ID, token.UserID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fail("token_used")
		}
		s.logger.Error("failed to consume verification token", slog.String("token_id", token.ID), slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	s.logger.Info("email verified", slog.String("user_id", token.UserID))
	s.audit.Record(ctx, meta, audit.Event{Type: audit.EventEmailVerified, UserID: token.UserID, Email: token.Email, Success: true})
	return EmailVerifiedMessage, nil
}

// ResendVerification sends a fresh link to an unverified account. The
// response does not reveal whether the address is registered.
func (s *EmailVerificationService) ResendVerification(ctx context.Context, email string, meta pkghttp.RequestMeta) (string, error) {
	email, err := pkgauth.NormalizeEmail(email)
	if err != nil {
		return "", models.BadRequest("Invalid email format")
	}

	if err := s.limits.CheckVerificationResend(ctx, email); err != nil {
		s.audit.Record(ctx, meta, audit.Event{Type: audit.EventRateLimited, Email: email, Reason: "verification_resend_quota"})
		return "", err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.audit.Record(ctx, meta, audit.Event{Type: audit.EventVerificationResent, Email: email, Reason: "unknown_email"})
			return VerificationResentMessage, nil
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	if user.EmailVerified {
		s.audit.Record(ctx, meta, audit.Event{Type: audit.EventVerificationResent, UserID: user.ID, Email: email, Reason: "already_verified"})
		return VerificationResentMessage, nil
	}

	if err := s.SendVerification(ctx, user); err != nil {
		s.logger.Error("failed to resend verification", slog.String("user_id", user.ID), slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	s.audit.Record(ctx, meta, audit.Event{Type: audit.EventVerificationResent, UserID: user.ID, Email: email, Success: true})
	return VerificationResentMessage, nil
}
