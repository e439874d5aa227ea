package services

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/folio-auth/internal/auth"
	"github.com/BradenHooton/folio-auth/internal/config"
	"github.com/BradenHooton/folio-auth/internal/models"
	"github.com/BradenHooton/folio-auth/internal/ratelimit"
	pkgauth "github.com/BradenHooton/folio-auth/pkg/auth"
	pkghttp "github.com/BradenHooton/folio-auth/pkg/http"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testPassword    = "Str0ng!Secret#42"
	testNewPassword = "An0ther!Secret#77"
)

// testClock is a settable time source shared by the services under test
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testMeta = pkghttp.RequestMeta{IPAddress: "203.0.113.7", UserAgent: "go-test"}

// testSecurityConfig mirrors the production thresholds with cheap bcrypt
func testSecurityConfig() config.SecurityConfig {
	return config.SecurityConfig{
		PasswordBcryptCost:        bcrypt.MinCost,
		OTPBcryptCost:             bcrypt.MinCost,
		OTPExpiry:                 300 * time.Second,
		OTPMaxAttempts:            5,
		ResetTokenExpiry:          15 * time.Minute,
		OTPRequestsPerDay:         10,
		OTPValidateLimit:          5,
		OTPValidateWindow:         15 * time.Minute,
		VerificationResendsPerDay: 5,
		LoginMaxFailures:          10,
		LoginFailureWindow:        15 * time.Minute,
	}
}

// testEnv wires every service against in-memory collaborators
type testEnv struct {
	clock       *testClock
	users       *MemoryUserRepository
	verifyRepo  *MemoryEmailVerificationRepository
	revocations *MockTokenRevocationRepository
	email       *MockEmailService
	events      *RecordingEmitter
	store       *ratelimit.MemoryStore
	tokens      *auth.TokenManager

	limits       *RateLimitService
	otp          *OTPService
	passwords    *PasswordService
	verification *EmailVerificationService
	auth         *AuthService
	profile      *UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	sec := testSecurityConfig()
	clock := newTestClock()
	logger := discardLogger()

	env := &testEnv{
		clock:       clock,
		users:       NewMemoryUserRepository(clock.Now),
		revocations: &MockTokenRevocationRepository{},
		email:       &MockEmailService{},
		events:      &RecordingEmitter{},
		store:       ratelimit.NewMemoryStore().WithClock(clock.Now),
	}
	env.verifyRepo = NewMemoryEmailVerificationRepository(env.users)
	env.tokens = auth.NewTokenManager(auth.TokenConfig{
		Secret:        strings.Repeat("k", 48),
		Issuer:        "folio-auth",
		Audience:      "folio-web",
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: 7 * 24 * time.Hour,
	})

	limiter := ratelimit.NewLimiter(env.store, "test").WithClock(clock.Now)
	env.limits = NewRateLimitService(limiter, RulesFromConfig(sec), logger)

	auditSvc := NewAuditService(env.events)
	auditSvc.now = clock.Now

	env.otp = NewOTPService(env.users, env.limits, env.email, auditSvc, OTPConfig{
		CodeTTL:       sec.OTPExpiry,
		ResetTokenTTL: sec.ResetTokenExpiry,
		MaxAttempts:   sec.OTPMaxAttempts,
		BcryptCost:    sec.OTPBcryptCost,
	}, logger)
	env.otp.now = clock.Now

	env.passwords = NewPasswordService(env.users, env.limits, env.email, auditSvc, sec.PasswordBcryptCost, logger)
	env.passwords.now = clock.Now

	env.verification = NewEmailVerificationService(env.verifyRepo, env.users, env.limits, env.email, auditSvc, 24*time.Hour, logger)
	env.verification.now = clock.Now

	env.auth = NewAuthService(env.users, env.revocations, env.tokens, env.verification, env.limits, nil, auditSvc, sec.PasswordBcryptCost, logger)
	env.auth.now = clock.Now

	env.profile = NewUserService(env.users, logger)
	return env
}

// addUser stores a verified user with testPassword
func (e *testEnv) addUser(t *testing.T, email string, mutate ...func(*models.User)) *models.User {
	t.Helper()
	hash, err := pkgauth.HashWithCost(testPassword, bcrypt.MinCost)
	require.NoError(t, err)

	user := &models.User{
		Username:      strings.Split(email, "@")[0],
		Email:         email,
		PasswordHash:  hash,
		Role:          "user",
		EmailVerified: true,
		CreatedAt:     e.clock.Now(),
	}
	for _, fn := range mutate {
		fn(user)
	}
	e.users.Add(user)
	return e.users.Snapshot(user.ID)
}

// resetTokenFor drives request-otp and validate-otp and returns the token
func (e *testEnv) resetTokenFor(t *testing.T, email string) string {
	t.Helper()
	ctx := context.Background()

	_, err := e.otp.RequestOTP(ctx, email, testMeta)
	require.NoError(t, err)
	grant, err := e.otp.ValidateOTP(ctx, email, e.email.LastOTP(email), testMeta)
	require.NoError(t, err)
	return grant.ResetToken
}

// wrongCode returns a six-digit code different from code
func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}
