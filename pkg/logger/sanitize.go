package logger

import (
	"log/slog"
	"strings"
)

// SanitizedEmail masks an email address for logging (e.g., "u***@*******.com")
func SanitizedEmail(email string) string {
	if email == "" {
		return ""
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "[invalid-email]"
	}

	username := parts[0]
	domain := parts[1]

	// Keep first char of the local part
	if len(username) > 1 {
		username = string(username[0]) + strings.Repeat("*", len(username)-1)
	}

	// Keep only the TLD of the domain
	domainParts := strings.Split(domain, ".")
	if len(domainParts) > 1 {
		for i := 0; i < len(domainParts)-1; i++ {
			domainParts[i] = strings.Repeat("*", len(domainParts[i]))
		}
		domain = strings.Join(domainParts, ".")
	}

	return username + "@" + domain
}

// EmailAttr returns a masked email attribute
func EmailAttr(email string) slog.Attr {
	return slog.String("email", SanitizedEmail(email))
}

var sensitiveParams = []string{
	"password",
	"token",
	"secret",
	"otp",
	"code",
	"email",
	"api_key",
	"apikey",
	"auth",
}

// SanitizeQueryString reports whether a query string carries sensitive
// parameters and should be redacted entirely
func SanitizeQueryString(rawQuery string) bool {
	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}

// SanitizePath redacts the trailing segment of paths that embed secrets,
// such as /verify-email/{token}
func SanitizePath(path string) string {
	const marker = "/verify-email/"
	if i := strings.Index(path, marker); i >= 0 && len(path) > i+len(marker) {
		return path[:i+len(marker)] + "[REDACTED]"
	}
	return path
}
