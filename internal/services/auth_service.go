package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/folio-auth/internal/audit"
	"github.com/BradenHooton/folio-auth/internal/auth"
	"github.com/BradenHooton/folio-auth/internal/models"
	pkgauth "github.com/BradenHooton/folio-auth/pkg/auth"
	pkghttp "github.com/BradenHooton/folio-auth/pkg/http"
)

const msgInvalidCredentials = "Invalid email or password"

// TokenRevocationRepository defines the interface for token revocation operations
type TokenRevocationRepository interface {
	RevokeToken(ctx context.Context, jti, userID, tokenType string, expiresAt time.Time, reason string) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// VerificationSender issues email verification links for new accounts
type VerificationSender interface {
	SendVerification(ctx context.Context, user *models.User) error
}

// AuthResult is returned by register, login and refresh
type AuthResult struct {
	User   models.PublicUser `json:"user"`
	Tokens *auth.TokenPair   `json:"tokens"`
}

// AuthService handles registration, credential checks and session tokens
type AuthService struct {
	users        UserRepository
	revocations  TokenRevocationRepository
	tokens       *auth.TokenManager
	verification VerificationSender
	limits       *RateLimitService
	timing       *auth.TimingDelay
	audit        *AuditService
	bcryptCost   int
	logger       *slog.Logger
	now          func() time.Time

	dummyHashOnce sync.Once
	dummyHash     string
}

func NewAuthService(
	users UserRepository,
	revocations TokenRevocationRepository,
	tokens *auth.TokenManager,
	verification VerificationSender,
	limits *RateLimitService,
	timing *auth.TimingDelay,
	audit *AuditService,
	bcryptCost int,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:        users,
		revocations:  revocations,
		tokens:       tokens,
		verification: verification,
		limits:       limits,
		timing:       timing,
		audit:        audit,
		bcryptCost:   bcryptCost,
		logger:       logger,
		now:          time.Now,
	}
}

// Register creates an account, sends its verification link and signs it in
func (s *AuthService) Register(ctx context.Context, username, email, password string, meta pkghttp.RequestMeta) (*AuthResult, error) {
	if err := pkgauth.ValidateUsername(username); err != nil {
		return nil, models.BadRequest("Username must be 3-32 characters of letters, digits, '_' or '-'")
	}
	email, err := pkgauth.NormalizeEmail(email)
	if err != nil {
		return nil, models.BadRequest("Invalid email format")
	}
	if err := passwordPolicyError(password); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		s.audit.Record(ctx, meta, audit.Event{Type: audit.EventRegister, Email: email, Reason: "email_taken"})
		return nil, models.Conflict("Email already registered")
	} else if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check existing email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		s.audit.Record(ctx, meta, audit.Event{Type: audit.EventRegister, Email: email, Reason: "username_taken"})
		return nil, models.Conflict("Username already taken")
	} else if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check existing username", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	hash, err := pkgauth.HashWithCost(password, s.bcryptCost)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user, err := s.users.Create(ctx, &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         "user",
	})
	if err != nil {
		// Unique constraint lost a race with a concurrent registration
		if errors.Is(err, models.ErrConflict) {
			return nil, err
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if s.verification != nil {
		if err := s.verification.SendVerification(ctx, user); err != nil {
			s.logger.Error("failed to send verification email", slog.String("user_id", user.ID), slog.Any("error", err))
		}
	}

	pair, err := s.tokens.IssuePair(user)
	if err != nil {
		s.logger.Error("failed to issue tokens", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user registered", slog.String("user_id", user.ID))
	s.audit.Record(ctx, meta, audit.Event{Type: audit.EventRegister, UserID: user.ID, Email: email, Success: true})
	return &AuthResult{User: user.Public(), Tokens: pair}, nil
}

// Login checks credentials and issues a token pair. Unknown emails and wrong
// passwords produce the same error after the same minimum delay.
func (s *AuthService) Login(ctx context.Context, email, password string, meta pkghttp.RequestMeta) (*AuthResult, error) {
	start := time.Now()

	email, err := pkgauth.NormalizeEmail(email)
	if err != nil {
		return nil, models.BadRequest("Invalid email format")
	}
	if password == "" {
		return nil, models.BadRequest("Password is required")
	}

	if err := s.limits.CheckLogin(ctx, email); err != nil {
		s.audit.Record(ctx, meta, audit.Event{Type: audit.EventRateLimited, Email: email, Reason: "login_failures"})
		return nil, err
	}

	fail := func(userID, reason string, err error) (*AuthResult, error) {
		s.limits.RecordLoginFailure(ctx, email)
		s.audit.Record(ctx, meta, audit.Event{Type: audit.EventLogin, UserID: userID, Email: email, Reason: reason})
		s.timing.WaitFrom(start, false)
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Burn a bcrypt comparison so unknown emails cost the same
			_ = pkgauth.ComparePassword(s.placeholderHash(), password)
			return fail("", "unknown_email", models.Unauthorized(msgInvalidCredentials))
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if pkgauth.ComparePassword(user.PasswordHash, password) != nil {
		return fail(user.ID, "invalid_credentials", models.Unauthorized(msgInvalidCredentials))
	}
	if user.AccountLocked {
		return fail(user.ID, "account_locked", models.Unauthorized("Account is locked. Please contact support."))
	}

	s.limits.ResetLogin(ctx, email)

	now := s.now()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("failed to update last login", slog.String("user_id", user.ID), slog.Any("error", err))
	} else {
		user.LastLoginAt = &now
	}

	pair, err := s.tokens.IssuePair(user)
	if err != nil {
		s.logger.Error("failed to issue tokens", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.timing.WaitFrom(start, true)
	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	s.audit.Record(ctx, meta, audit.Event{Type: audit.EventLogin, UserID: user.ID, Email: email, Success: true})
	return &AuthResult{User: user.Public(), Tokens: pair}, nil
}

// RefreshToken rotates a refresh token: the presented one is revoked and a
// new pair is issued for the current session version
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string, meta pkghttp.RequestMeta) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, models.BadRequest("Refresh token is required")
	}

	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, models.Unauthorized("Invalid or expired refresh token")
	}

	revoked, err := s.revocations.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		s.logger.Error("token revocation check failed", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if revoked {
		s.audit.Record(ctx, meta, audit.Event{Type: audit.EventTokenRefresh, UserID: claims.UserID, Reason: "token_revoked"})
		return nil, models.Unauthorized("Token has been revoked")
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.Unauthorized("Invalid or expired refresh token")
		}
		s.logger.Error("failed to get user", slog.String("user_id", claims.UserID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if user.SessionVersion != claims.SessionVersion {
		s.audit.Record(ctx, meta, audit.Event{Type: audit.EventTokenRefresh, UserID: user.ID, Reason: "session_version_mismatch"})
		return nil, models.Unauthorized("Session expired. Please log in again.")
	}
	if user.AccountLocked {
		return nil, models.Unauthorized("Account is locked. Please contact support.")
	}

	// The insert is the single point of truth: a concurrent refresh that
	// passed the check above loses here
	if err := s.revocations.RevokeToken(ctx, claims.ID, user.ID, models.TokenTypeRefresh, auth.TokenExpiry(claims), "rotated"); err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.audit.Record(ctx, meta, audit.Event{Type: audit.EventTokenRefresh, UserID: user.ID, Reason: "token_revoked"})
			return nil, models.Unauthorized("Token has been revoked")
		}
		s.logger.Error("failed to revoke rotated refresh token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	pair, err := s.tokens.IssuePair(user)
	if err != nil {
		s.logger.Error("failed to issue tokens", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.Record(ctx, meta, audit.Event{Type: audit.EventTokenRefresh, UserID: user.ID, Success: true})
	return &AuthResult{User: user.Public(), Tokens: pair}, nil
}

// Logout revokes the access token in claims and, when supplied, the
// caller's refresh token
func (s *AuthService) Logout(ctx context.Context, claims *models.TokenClaims, refreshToken string, meta pkghttp.RequestMeta) error {
	if claims == nil {
		return models.Unauthorized("Authentication required")
	}

	if err := s.revocations.RevokeToken(ctx, claims.ID, claims.UserID, models.TokenTypeAccess, auth.TokenExpiry(claims), "logout"); err != nil && !errors.Is(err, models.ErrConflict) {
		s.logger.Error("failed to revoke access token", slog.String("user_id", claims.UserID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if refreshToken != "" {
		refresh, err := s.tokens.ValidateRefreshToken(refreshToken)
		if err == nil && refresh.UserID == claims.UserID {
			if err := s.revocations.RevokeToken(ctx, refresh.ID, refresh.UserID, models.TokenTypeRefresh, auth.TokenExpiry(refresh), "logout"); err != nil && !errors.Is(err, models.ErrConflict) {
				s.logger.Error("failed to revoke refresh token", slog.String("user_id", claims.UserID), slog.Any("error", err))
				return models.ErrInternalServer
			}
		}
	}

	s.logger.Info("user logged out", slog.String("user_id", claims.UserID))
	s.audit.Record(ctx, meta, audit.Event{Type: audit.EventLogout, UserID: claims.UserID, Email: claims.Email, Success: true})
	return nil
}

func (s *AuthService) placeholderHash() string {
	s.dummyHashOnce.Do(func() {
		hash, err := pkgauth.HashWithCost("folio-auth-placeholder", s.bcryptCost)
		if err != nil {
			s.logger.Error("failed to build placeholder hash", slog.Any("error", err))
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}
