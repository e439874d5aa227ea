package models

import (
	"time"
)

type User struct {
	ID                string
	Username          string
	Email             string // lower-cased, unique
	PasswordHash      string
	Role              string // "user", "admin"
	EmailVerified     bool
	AccountLocked     bool
	SessionVersion    int
	PasswordChangedAt *time.Time
	LastLoginAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time

	// OTP challenge; cleared together on success, expiry or replacement
	OTPHash        *string
	OTPGeneratedAt *time.Time
	OTPAttempts    int

	// Password reset credential, issued only after a successful OTP check.
	// Only the SHA-256 digest of the token is stored.
	ResetTokenHash   *string
	ResetTokenExpiry *time.Time
}

// HasOTPChallenge reports whether an OTP is on file.
func (u *User) HasOTPChallenge() bool {
	return u.OTPHash != nil && u.OTPGeneratedAt != nil
}

// OTPExpired reports whether the OTP on file is older than ttl at now.
func (u *User) OTPExpired(now time.Time, ttl time.Duration) bool {
	if u.OTPGeneratedAt == nil {
		return true
	}
	return now.Sub(*u.OTPGeneratedAt) > ttl
}

// HasResetToken reports whether a reset token is on file.
func (u *User) HasResetToken() bool {
	return u.ResetTokenHash != nil && u.ResetTokenExpiry != nil
}

// ResetTokenExpired reports whether the reset token on file has expired at now.
func (u *User) ResetTokenExpired(now time.Time) bool {
	if u.ResetTokenExpiry == nil {
		return true
	}
	return now.After(*u.ResetTokenExpiry)
}

// PublicUser is the client-facing view of a user
type PublicUser struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	Role          string     `json:"role"`
	EmailVerified bool       `json:"emailVerified"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
		LastLoginAt:   u.LastLoginAt,
		CreatedAt:     u.CreatedAt,
	}
}
