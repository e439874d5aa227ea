package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BradenHooton/folio-auth/internal/database"
	"github.com/BradenHooton/folio-auth/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{pool: db.Pool}
}

const userColumns = `
	id, username, email, password_hash, role, email_verified, account_locked, session_version,
	otp_hash, otp_generated_at, otp_attempts, reset_token_hash, reset_token_expiry,
	password_changed_at, last_login_at, created_at, updated_at`

// rowScanner is satisfied by pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User

	err := scanner.Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.Role,
		&user.EmailVerified, &user.AccountLocked, &user.SessionVersion,
		&user.OTPHash, &user.OTPGeneratedAt, &user.OTPAttempts,
		&user.ResetTokenHash, &user.ResetTokenExpiry,
		&user.PasswordChangedAt, &user.LastLoginAt, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, strings.ToLower(email)))
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(username) = LOWER($1)`
	return scanUserRow(r.pool.QueryRow(ctx, query, username))
}

// Create inserts a new user; OTP and reset fields always start blank
func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if user.Role == "" {
		user.Role = "user"
	}

	query := `
		INSERT INTO users (username, email, password_hash, role, email_verified)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query,
		user.Username, strings.ToLower(user.Email), user.PasswordHash, user.Role, user.EmailVerified,
	))
}

// SetOTP stores a fresh OTP challenge, resets the attempt counter and drops
// any outstanding reset token
func (r *UserRepository) SetOTP(ctx context.Context, id, otpHash string, generatedAt time.Time) error {
	query := `
		UPDATE users
		SET otp_hash = $2, otp_generated_at = $3, otp_attempts = 0,
		    reset_token_hash = NULL, reset_token_expiry = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, otpHash, generatedAt)
}

func (r *UserRepository) ClearOTP(ctx context.Context, id string) error {
	query := `
		UPDATE users
		SET otp_hash = NULL, otp_generated_at = NULL, otp_attempts = 0, updated_at = NOW()
		WHERE id = $1
	`
	return r.execOne(ctx, query, id)
}

// IncrementOTPAttempts records one OTP mismatch. When the count reaches
// maxAttempts the account is locked and the challenge discarded, in the
// same statement.
func (r *UserRepository) IncrementOTPAttempts(ctx context.Context, id string, maxAttempts int) (int, bool, error) {
	query := `
		UPDATE users
		SET otp_attempts     = otp_attempts + 1,
		    account_locked   = account_locked OR otp_attempts + 1 >= $2,
		    otp_hash         = CASE WHEN otp_attempts + 1 >= $2 THEN NULL ELSE otp_hash END,
		    otp_generated_at = CASE WHEN otp_attempts + 1 >= $2 THEN NULL ELSE otp_generated_at END,
		    updated_at       = NOW()
		WHERE id = $1
		RETURNING otp_attempts, account_locked
	`

	var attempts int
	var locked bool
	if err := r.pool.QueryRow(ctx, query, id, maxAttempts).Scan(&attempts, &locked); err != nil {
		return 0, false, database.MapPostgresError(err)
	}
	return attempts, locked, nil
}

// SetResetToken issues a reset credential and clears the OTP challenge
func (r *UserRepository) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	query := `
		UPDATE users
		SET reset_token_hash = $2, reset_token_expiry = $3,
		    otp_hash = NULL, otp_generated_at = NULL, otp_attempts = 0,
		    updated_at = NOW()
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, tokenHash, expiresAt)
}

func (r *UserRepository) ClearResetToken(ctx context.Context, id string) error {
	query := `
		UPDATE users
		SET reset_token_hash = NULL, reset_token_expiry = NULL, updated_at = NOW()
		WHERE id = $1
	`
	return r.execOne(ctx, query, id)
}

// UpdatePassword replaces the hash, drops any reset token and bumps the
// session version. It returns the new session version.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) (int, error) {
	query := `
		UPDATE users
		SET password_hash = $2, session_version = session_version + 1,
		    reset_token_hash = NULL, reset_token_expiry = NULL,
		    password_changed_at = NOW(), updated_at = NOW()
		WHERE id = $1
		RETURNING session_version
	`

	var version int
	if err := r.pool.QueryRow(ctx, query, id, passwordHash).Scan(&version); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return version, nil
}

// ConsumeResetToken is UpdatePassword guarded by the reset token: it only
// succeeds while tokenHash is still on file and unexpired, so a token can
// be spent at most once even under concurrent requests.
func (r *UserRepository) ConsumeResetToken(ctx context.Context, id, tokenHash, passwordHash string) (int, error) {
	query := `
		UPDATE users
		SET password_hash = $3, session_version = session_version + 1,
		    reset_token_hash = NULL, reset_token_expiry = NULL,
		    password_changed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND reset_token_hash = $2 AND reset_token_expiry > NOW()
		RETURNING session_version
	`

	var version int
	if err := r.pool.QueryRow(ctx, query, id, tokenHash, passwordHash).Scan(&version); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return version, nil
}

func (r *UserRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE users SET last_login_at = $2 WHERE id = $1`
	return r.execOne(ctx, query, id, at)
}

// execOne runs an update that must hit exactly one row
func (r *UserRepository) execOne(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	if result.RowsAffected() > 1 {
		return fmt.Errorf("expected one row updated, got %d", result.RowsAffected())
	}
	return nil
}
