package audit

import (
	"context"
	"time"
)

// Event types recorded by the auth flows
const (
	EventRegister           = "register"
	EventLogin              = "login"
	EventLogout             = "logout"
	EventTokenRefresh       = "token_refresh"
	EventOTPRequested       = "otp_requested"
	EventOTPValidated       = "otp_validated"
	EventAccountLocked      = "account_locked"
	EventPasswordReset      = "password_reset"
	EventPasswordChanged    = "password_changed"
	EventEmailVerified      = "email_verified"
	EventVerificationResent = "verification_resent"
	EventRateLimited        = "rate_limited"
)

// Event is one auditable outcome. Email must already be sanitized.
type Event struct {
	Type      string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	Email     string            `json:"email,omitempty"`
	IPAddress string            `json:"ip_address,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Success   bool              `json:"success"`
	Reason    string            `json:"reason,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Sink persists or forwards events. Errors are reported to the dispatcher,
// which logs them; they never reach the request path.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, event Event) error

func (f SinkFunc) Emit(ctx context.Context, event Event) error {
	return f(ctx, event)
}
