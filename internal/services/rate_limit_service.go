package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/BradenHooton/folio-auth/internal/config"
	"github.com/BradenHooton/folio-auth/internal/models"
	"github.com/BradenHooton/folio-auth/internal/ratelimit"
)

// RateLimitRules are the per-email counters guarding the auth flows
type RateLimitRules struct {
	OTPRequest         ratelimit.Rule
	OTPValidate        ratelimit.Rule
	VerificationResend ratelimit.Rule
	LoginFailures      ratelimit.Rule
}

// RulesFromConfig builds the rule set from the security thresholds
func RulesFromConfig(cfg config.SecurityConfig) RateLimitRules {
	return RateLimitRules{
		OTPRequest:         ratelimit.Rule{Name: "otp_request", Limit: cfg.OTPRequestsPerDay, Daily: true},
		OTPValidate:        ratelimit.Rule{Name: "otp_validate", Limit: cfg.OTPValidateLimit, Window: cfg.OTPValidateWindow},
		VerificationResend: ratelimit.Rule{Name: "verification_resend", Limit: cfg.VerificationResendsPerDay, Daily: true},
		LoginFailures:      ratelimit.Rule{Name: "login_failures", Limit: cfg.LoginMaxFailures, Window: cfg.LoginFailureWindow},
	}
}

// RateLimitService applies the auth quotas. Store failures are logged and the
// request is allowed through.
type RateLimitService struct {
	limiter *ratelimit.Limiter
	rules   RateLimitRules
	logger  *slog.Logger
}

func NewRateLimitService(limiter *ratelimit.Limiter, rules RateLimitRules, logger *slog.Logger) *RateLimitService {
	return &RateLimitService{
		limiter: limiter,
		rules:   rules,
		logger:  logger,
	}
}

// CheckOTPRequest counts one OTP request against the daily quota
func (s *RateLimitService) CheckOTPRequest(ctx context.Context, email string) error {
	return s.allow(ctx, s.rules.OTPRequest, email,
		fmt.Sprintf("Maximum of %d OTP requests per day exceeded. Please try again tomorrow.", s.rules.OTPRequest.Limit))
}

// CheckOTPValidation counts one validation attempt against the sliding window
func (s *RateLimitService) CheckOTPValidation(ctx context.Context, email string) error {
	decision, err := s.limiter.Allow(ctx, s.rules.OTPValidate, email)
	if err != nil {
		s.storeFailure(s.rules.OTPValidate, err)
		return nil
	}
	if !decision.Allowed {
		minutes := int(math.Ceil(decision.RetryAfter.Minutes()))
		if minutes < 1 {
			minutes = 1
		}
		return models.TooManyRequests(fmt.Sprintf("Too many OTP validation attempts. Please try again in %d minutes.", minutes))
	}
	return nil
}

// CheckVerificationResend counts one resend against the daily quota
func (s *RateLimitService) CheckVerificationResend(ctx context.Context, email string) error {
	return s.allow(ctx, s.rules.VerificationResend, email,
		fmt.Sprintf("Maximum of %d verification emails per day exceeded. Please try again tomorrow.", s.rules.VerificationResend.Limit))
}

// CheckLogin rejects logins for an email with too many recent failures
// without counting the attempt itself
func (s *RateLimitService) CheckLogin(ctx context.Context, email string) error {
	decision, err := s.limiter.Peek(ctx, s.rules.LoginFailures, email)
	if err != nil {
		s.storeFailure(s.rules.LoginFailures, err)
		return nil
	}
	if !decision.Allowed {
		return models.TooManyRequests("Too many failed login attempts. Please try again later.")
	}
	return nil
}

func (s *RateLimitService) RecordLoginFailure(ctx context.Context, email string) {
	if _, err := s.limiter.Allow(ctx, s.rules.LoginFailures, email); err != nil {
		s.storeFailure(s.rules.LoginFailures, err)
	}
}

// ResetLogin clears the failure counter after a successful login or reset
func (s *RateLimitService) ResetLogin(ctx context.Context, email string) {
	if err := s.limiter.Reset(ctx, s.rules.LoginFailures, email); err != nil {
		s.storeFailure(s.rules.LoginFailures, err)
	}
}

func (s *RateLimitService) allow(ctx context.Context, rule ratelimit.Rule, identity, message string) error {
	decision, err := s.limiter.Allow(ctx, rule, identity)
	if err != nil {
		s.storeFailure(rule, err)
		return nil
	}
	if !decision.Allowed {
		s.logger.Warn("rate limit exceeded",
			slog.String("rule", rule.Name),
			slog.Int64("count", decision.Count),
			slog.Duration("retry_after", decision.RetryAfter.Round(time.Second)),
		)
		return models.TooManyRequests(message)
	}
	return nil
}

func (s *RateLimitService) storeFailure(rule ratelimit.Rule, err error) {
	s.logger.Error("rate limit store unavailable, allowing request",
		slog.String("rule", rule.Name),
		slog.Any("error", err),
	)
}
