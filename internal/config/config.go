package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Security SecurityConfig
	Email    EmailConfig
}

type ServerConfig struct {
	Port           string        `env:"PORT" envDefault:"8080"`
	Env            string        `env:"ENV" envDefault:"development"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
	TrustedProxies []string      `env:"TRUSTED_PROXIES" envSeparator:","`
	ReadTimeout    time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout   time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout    time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`
}

type DatabaseConfig struct {
	Host              string        `env:"DB_HOST" envDefault:"localhost"`
	Port              int           `env:"DB_PORT" envDefault:"5432"`
	User              string        `env:"DB_USER" envDefault:"postgres"`
	Password          string        `env:"DB_PASSWORD"`
	Name              string        `env:"DB_NAME" envDefault:"folio_auth"`
	SSLMode           string        `env:"DB_SSLMODE" envDefault:"disable"`
	MaxConns          int32         `env:"DB_MAX_CONNS" envDefault:"25"`
	MinConns          int32         `env:"DB_MIN_CONNS" envDefault:"5"`
	MaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"5m"`
	MaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"1m"`
	HealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// KeyPrefix namespaces every counter this service writes
	KeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"folio-auth"`
}

type KafkaConfig struct {
	Brokers    []string `env:"KAFKA_BROKERS" envSeparator:","`
	AuditTopic string   `env:"KAFKA_AUDIT_TOPIC" envDefault:"auth.audit"`
}

// Enabled reports whether audit events should be published to Kafka
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type AuthConfig struct {
	JWTSecret            string        `env:"JWT_SECRET"`
	Issuer               string        `env:"JWT_ISSUER" envDefault:"folio-auth"`
	Audience             string        `env:"JWT_AUDIENCE" envDefault:"folio-web"`
	AccessTokenExpiry    time.Duration `env:"ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	RefreshTokenExpiry   time.Duration `env:"REFRESH_TOKEN_EXPIRY" envDefault:"168h"`
	CleanupInterval      time.Duration `env:"TOKEN_CLEANUP_INTERVAL" envDefault:"1h"`
	RevocationFailClosed bool          `env:"REVOCATION_FAIL_CLOSED" envDefault:"false"`
	TimingDelayBaseMs    int           `env:"TIMING_DELAY_BASE_MS" envDefault:"200"`
	TimingDelayRandomMs  int           `env:"TIMING_DELAY_RANDOM_MS" envDefault:"100"`
}

// SecurityConfig is the single source for every OTP, reset and rate-limit threshold
type SecurityConfig struct {
	PasswordBcryptCost int           `env:"PASSWORD_BCRYPT_COST" envDefault:"12"`
	OTPBcryptCost      int           `env:"OTP_BCRYPT_COST" envDefault:"10"`
	OTPExpiry          time.Duration `env:"OTP_EXPIRY" envDefault:"300s"`
	OTPMaxAttempts     int           `env:"OTP_MAX_ATTEMPTS" envDefault:"5"`
	ResetTokenExpiry   time.Duration `env:"RESET_TOKEN_EXPIRY" envDefault:"15m"`

	OTPRequestsPerDay         int           `env:"OTP_REQUESTS_PER_DAY" envDefault:"10"`
	OTPValidateLimit          int           `env:"OTP_VALIDATE_LIMIT" envDefault:"5"`
	OTPValidateWindow         time.Duration `env:"OTP_VALIDATE_WINDOW" envDefault:"15m"`
	VerificationResendsPerDay int           `env:"VERIFICATION_RESENDS_PER_DAY" envDefault:"5"`
	LoginMaxFailures          int           `env:"LOGIN_MAX_FAILURES" envDefault:"10"`
	LoginFailureWindow        time.Duration `env:"LOGIN_FAILURE_WINDOW" envDefault:"15m"`
	IPRequestsPerMinute       int           `env:"IP_REQUESTS_PER_MINUTE" envDefault:"20"`

	// RateLimitStore selects "redis" (shared across instances) or "memory"
	RateLimitStore string `env:"RATE_LIMIT_STORE" envDefault:"redis"`

	AuditBufferSize    int `env:"AUDIT_BUFFER_SIZE" envDefault:"256"`
	AuditRetentionDays int `env:"AUDIT_RETENTION_DAYS" envDefault:"90"`
}

type EmailConfig struct {
	// Provider is one of "ses", "smtp" or "log"
	Provider        string        `env:"EMAIL_PROVIDER" envDefault:"log"`
	FromAddress     string        `env:"EMAIL_FROM" envDefault:"no-reply@localhost"`
	AppURL          string        `env:"APP_URL" envDefault:"http://localhost:5173"`
	VerificationTTL time.Duration `env:"EMAIL_VERIFICATION_TTL" envDefault:"24h"`
	AWSRegion       string        `env:"AWS_REGION" envDefault:"us-east-1"`
	SMTPHost        string        `env:"SMTP_HOST"`
	SMTPPort        int           `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername    string        `env:"SMTP_USERNAME"`
	SMTPPassword    string        `env:"SMTP_PASSWORD"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(cfg.Auth.JWTSecret, cfg.Server.Env); err != nil {
		return nil, err
	}
	if err := cfg.Security.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Email.validate(); err != nil {
		return nil, err
	}

	cfg.Server.AllowedOrigins = resolveAllowedOrigins(cfg.Server.Env, cfg.Server.AllowedOrigins)

	return cfg, nil
}

// LoadDatabase parses only the database section, for tooling such as migrations
func LoadDatabase() (*DatabaseConfig, error) {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[DatabaseConfig]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse database environment: %w", err)
	}
	if cfg.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	return &cfg, nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32 // 256 bits
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (s SecurityConfig) validate() error {
	var errs []error

	for name, cost := range map[string]int{
		"PASSWORD_BCRYPT_COST": s.PasswordBcryptCost,
		"OTP_BCRYPT_COST":      s.OTPBcryptCost,
	} {
		if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
			errs = append(errs, fmt.Errorf("%s must be between %d and %d", name, bcrypt.MinCost, bcrypt.MaxCost))
		}
	}

	positive := []struct {
		name  string
		value int64
	}{
		{"OTP_EXPIRY", int64(s.OTPExpiry)},
		{"OTP_MAX_ATTEMPTS", int64(s.OTPMaxAttempts)},
		{"RESET_TOKEN_EXPIRY", int64(s.ResetTokenExpiry)},
		{"OTP_REQUESTS_PER_DAY", int64(s.OTPRequestsPerDay)},
		{"OTP_VALIDATE_LIMIT", int64(s.OTPValidateLimit)},
		{"OTP_VALIDATE_WINDOW", int64(s.OTPValidateWindow)},
		{"VERIFICATION_RESENDS_PER_DAY", int64(s.VerificationResendsPerDay)},
		{"LOGIN_MAX_FAILURES", int64(s.LoginMaxFailures)},
		{"LOGIN_FAILURE_WINDOW", int64(s.LoginFailureWindow)},
		{"IP_REQUESTS_PER_MINUTE", int64(s.IPRequestsPerMinute)},
		{"AUDIT_BUFFER_SIZE", int64(s.AuditBufferSize)},
		{"AUDIT_RETENTION_DAYS", int64(s.AuditRetentionDays)},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", p.name))
		}
	}

	switch s.RateLimitStore {
	case "redis", "memory":
	default:
		errs = append(errs, fmt.Errorf("RATE_LIMIT_STORE must be \"redis\" or \"memory\", got %q", s.RateLimitStore))
	}

	return errors.Join(errs...)
}

func (e EmailConfig) validate() error {
	switch e.Provider {
	case "log", "ses":
		return nil
	case "smtp":
		if e.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required when EMAIL_PROVIDER=smtp")
		}
		return nil
	default:
		return fmt.Errorf("EMAIL_PROVIDER must be one of ses, smtp, log (got %q)", e.Provider)
	}
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// resolveAllowedOrigins trims configured origins; outside production it
// falls back to common local dev servers when none are configured
func resolveAllowedOrigins(env string, configured []string) []string {
	origins := make([]string, 0, len(configured))
	for _, origin := range configured {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}

	if len(origins) > 0 || env == "production" {
		return origins
	}

	return []string{
		"http://localhost:3000",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
}
