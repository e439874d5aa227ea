package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/BradenHooton/folio-auth/internal/audit"
	"github.com/BradenHooton/folio-auth/internal/models"
	pkgauth "github.com/BradenHooton/folio-auth/pkg/auth"
	pkghttp "github.com/BradenHooton/folio-auth/pkg/http"
	pkglogger "github.com/BradenHooton/folio-auth/pkg/logger"
)

// OTPRequestedMessage is returned whether or not the email is registered
const OTPRequestedMessage = "If this email exists, an OTP has been sent to it."

type OTPConfig struct {
	CodeTTL       time.Duration
	ResetTokenTTL time.Duration
	MaxAttempts   int
	BcryptCost    int
}

// ResetGrant is the outcome of a successful OTP check
type ResetGrant struct {
	ResetToken string    `json:"resetToken"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// OTPService runs the first two steps of password recovery: issuing a
// one-time code and exchanging it for a short-lived reset token.
type OTPService struct {
	users  UserRepository
	limits *RateLimitService
	email  EmailService
	audit  *AuditService
	config OTPConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewOTPService(users UserRepository, limits *RateLimitService, email EmailService, audit *AuditService, config OTPConfig, logger *slog.Logger) *OTPService {
	return &OTPService{
		users:  users,
		limits: limits,
		email:  email,
		audit:  audit,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// RequestOTP issues a new code for email. Unknown addresses get the same
// response as known ones.
func (s *OTPService) RequestOTP(ctx context.Context, email string, meta pkghttp.RequestMeta) (string, error) {
	email, err := pkgauth.NormalizeEmail(email)
	if err != nil {
		return "", models.BadRequest("Invalid email format")
	}

	if err := s.limits.CheckOTPRequest(ctx, email); err != nil {
		s.audit.Record(ctx, meta, audit.Event{Type: audit.EventRateLimited, Email: email, Reason: "otp_request_quota"})
		return "", err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("otp requested for unknown email", pkglogger.EmailAttr(email))
			s.audit.Record(ctx, meta, audit.Event{Type: audit.EventOTPRequested, Email: email, Reason: "unknown_email"})
			return OTPRequestedMessage, nil
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	if user.AccountLocked {
		s.audit.Record(ctx, meta, audit.Event{Type: audit.EventOTPRequested, UserID: user.ID, Email: email, Reason: "account_locked"})
		return "", models.BadRequest("Account is locked. Please contact support.")
	}
	if !user.EmailVerified {
		s.audit.Record(ctx, meta, audit.Event{Type: audit.EventOTPRequested, UserID: user.ID, Email: email, Reason: "email_not_verified"})
		return "", models.BadRequest("Email address is not verified. Please verify your email first.")
	}

	code, err := pkgauth.GenerateNumericCode(pkgauth.OTPDigits)
	if err != nil {
		s.logger.Error("failed to generate otp", slog.Any("error", err))
		return "", models.ErrInternalServer
	}
	hash, err := pkgauth.HashWithCost(code, s.config.BcryptCost)
	if err != nil {
		s.logger.Error("failed to hash otp", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	// Replaces any earlier code and discards an outstanding reset token
	if err := s.users.SetOTP(ctx, user.ID, hash, s.now()); err != nil {
		s.logger.Error("failed to store otp", slog.String("user_id", user.ID), slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	if err := s.email.SendOTP(ctx, user.Email, code, s.config.CodeTTL); err != nil {
		s.logger.Error("failed to send otp email", slog.String("user_id", user.ID), slog.Any("error", err))
	}

	s.logger.Info("otp issued", slog.String("user_id", user.ID))
	s.audit.Record(ctx, meta, audit.Event{Type: audit.EventOTPRequested, UserID: user.ID, Email: email, Success: true})
	return OTPRequestedMessage, nil
}

// ValidateOTP checks code against the stored challenge. On success the
// challenge is replaced by a reset token, returned once in plaintext.
func (s *OTPService) ValidateOTP(ctx context.Context, email, code string, meta pkghttp.RequestMeta) (*ResetGrant, error) {
	email, err := pkgauth.NormalizeEmail(email)
	if err != nil {
		return nil, models.BadRequest("Invalid email format")
	}
	if err := pkgauth.ValidateOTPCode(code); err != nil {
		return nil, models.BadRequest(err.Error())
	}

	if err := s.limits.CheckOTPValidation(ctx, email); err != nil {
		s.audit.Record(ctx, meta, audit.Event{Type: audit.EventRateLimited, Email: email, Reason: "otp_validate_window"})
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.NotFound("User not found")
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	fail := func(reason string, err error) (*ResetGrant, error) {
		s.audit.Record(ctx, meta, audit.Event{Type: audit.EventOTPValidated, UserID: user.ID, Email: email, Reason: reason})
		return nil, err
	}

	if user.AccountLocked {
		return fail("account_locked", models.BadRequest("Account is locked due to too many failed attempts. Please contact support."))
	}
	if !user.HasOTPChallenge() {
		return fail("no_otp", models.BadRequest("No OTP found. Please request a new OTP."))
	}

	if user.OTPExpired(s.now(), s.config.CodeTTL) {
		if err := s.users.ClearOTP(ctx, user.ID); err != nil {
			s.logger.Error("failed to clear expired otp", slog.String("user_id", user.ID), slog.Any("error", err))
		}
		return fail("otp_expired", models.BadRequest("OTP has expired. Please request a new OTP."))
	}

	if pkgauth.ComparePassword(*user.OTPHash, code) != nil {
		return s.recordMismatch(ctx, user, email, meta)
	}

	token, err := pkgauth.GenerateResetToken()
	if err != nil {
		s.logger.Error("failed to generate reset token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	expiresAt := s.now().Add(s.config.ResetTokenTTL)

	if err := s.users.SetResetToken(ctx, user.ID, pkgauth.HashToken(token), expiresAt); err != nil {
		s.logger.Error("failed to store reset token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("otp validated", slog.String("user_id", user.ID))
	s.audit.Record(ctx, meta, audit.Event{Type: audit.EventOTPValidated, UserID: user.ID, Email: email, Success: true})
	return &ResetGrant{ResetToken: token, ExpiresAt: expiresAt}, nil
}

func (s *OTPService) recordMismatch(ctx context.Context, user *models.User, email string, meta pkghttp.RequestMeta) (*ResetGrant, error) {
	attempts, locked, err := s.users.IncrementOTPAttempts(ctx, user.ID, s.config.MaxAttempts)
	if err != nil {
		s.logger.Error("failed to record otp attempt", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if locked {
		s.logger.Warn("account locked after failed otp attempts",
			slog.String("user_id", user.ID),
			slog.Int("attempts", attempts),
		)
		s.audit.Record(ctx, meta, audit.Event{
			Type:     audit.EventAccountLocked,
			UserID:   user.ID,
			Email:    email,
			Reason:   "otp_attempts_exceeded",
			Metadata: map[string]string{"attempts": strconv.Itoa(attempts)},
		})
		return nil, models.BadRequest("Too many failed attempts. Account has been locked. Please contact support.")
	}

	remaining := s.config.MaxAttempts - attempts
	s.audit.Record(ctx, meta, audit.Event{
		Type:     audit.EventOTPValidated,
		UserID:   user.ID,
		Email:    email,
		Reason:   "otp_mismatch",
		Metadata: map[string]string{"attempts": strconv.Itoa(attempts)},
	})
	return nil, models.BadRequest(fmt.Sprintf("Invalid OTP. %d attempts remaining.", remaining))
}
