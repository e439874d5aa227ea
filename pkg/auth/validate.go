package auth

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrInvalidEmail      = errors.New("invalid email format")
	ErrInvalidOTP        = errors.New("OTP must be a 6-digit number")
	ErrInvalidResetToken = errors.New("invalid reset token format")
	ErrInvalidUsername   = errors.New("username must be 3-32 letters, digits, '_' or '-'")
)

var validate = validator.New()

// NormalizeEmail trims and lower-cases an address, then checks its format.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validate.Var(email, "required,email,max=254"); err != nil {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// ValidateOTPCode accepts exactly six ASCII digits.
func ValidateOTPCode(code string) error {
	if len(code) != OTPDigits {
		return ErrInvalidOTP
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return ErrInvalidOTP
		}
	}
	return nil
}

// ValidateResetToken checks the shape of a reset token before any lookup.
// Issued tokens are lowercase hex, so prefixes and uppercase never match.
func ValidateResetToken(token string) error {
	if err := validate.Var(token, "required,min=32,max=128"); err != nil {
		return ErrInvalidResetToken
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		if !(c >= '0' && c <= '9') && !(c >= 'a' && c <= 'f') {
			return ErrInvalidResetToken
		}
	}
	return nil
}

func ValidateUsername(username string) error {
	if err := validate.Var(username, "required,min=3,max=32"); err != nil {
		return ErrInvalidUsername
	}
	for _, r := range username {
		if !(r == '_' || r == '-' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return ErrInvalidUsername
		}
	}
	return nil
}
