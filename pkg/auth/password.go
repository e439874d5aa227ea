package auth

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultBcryptCost = 12
	MinPasswordLen    = 12
	// MaxPasswordLen is bcrypt's input limit in bytes; longer secrets are
	// rejected by GenerateFromPassword.
	MaxPasswordLen    = 72
)

// PasswordValidationError lists every policy rule a password failed, in check order.
type PasswordValidationError struct {
	Errors []string
}

func (e *PasswordValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "password validation failed"
	}
	return "password does not meet requirements"
}

// Substrings that make a password trivially guessable regardless of its other properties.
var blockedPatterns = []string{
	"password",
	"123456",
	"qwerty",
	"admin",
	"letmein",
	"welcome",
	"abc123",
	"111111",
	"iloveyou",
}

// HashPassword hashes a secret with the default bcrypt cost.
func HashPassword(password string) (string, error) {
	return HashWithCost(password, DefaultBcryptCost)
}

// HashWithCost hashes any secret (password or one-time code) with the given bcrypt cost.
func HashWithCost(secret string, cost int) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("secret cannot be empty")
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return "", fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hashedBytes), nil
}

func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// ValidatePassword enforces the password policy. Checks always run in the same
// order: length, uppercase, lowercase, number, special character, blocked pattern.
func ValidatePassword(password string) error {
	errors := make([]string, 0)

	if len(password) < MinPasswordLen {
		errors = append(errors, fmt.Sprintf("Password must be at least %d characters long", MinPasswordLen))
	} else if len(password) > MaxPasswordLen {
		errors = append(errors, fmt.Sprintf("Password must be at most %d characters long", MaxPasswordLen))
	}

	hasUpper := false
	hasLower := false
	hasDigit := false
	hasSpecial := false

	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if !hasUpper {
		errors = append(errors, "Password must contain at least one uppercase letter")
	}
	if !hasLower {
		errors = append(errors, "Password must contain at least one lowercase letter")
	}
	if !hasDigit {
		errors = append(errors, "Password must contain at least one number")
	}
	if !hasSpecial {
		errors = append(errors, "Password must contain at least one special character")
	}

	lower := strings.ToLower(password)
	for _, pattern := range blockedPatterns {
		if strings.Contains(lower, pattern) {
			errors = append(errors, "Password contains a common pattern and is not allowed")
			break
		}
	}

	if len(errors) > 0 {
		return &PasswordValidationError{Errors: errors}
	}

	return nil
}
