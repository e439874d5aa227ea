package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/folio-auth/internal/database"
	"github.com/BradenHooton/folio-auth/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EmailVerificationRepository handles email verification token data access
type EmailVerificationRepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

func NewEmailVerificationRepository(db *database.DB) *EmailVerificationRepository {
	return &EmailVerificationRepository{db: db, pool: db.Pool}
}

const verificationColumns = `id, user_id, token_hash, email, expires_at, used_at, created_at`

func scanTokenRow(row rowScanner) (*models.EmailVerificationToken, error) {
	var token models.EmailVerificationToken

	err := row.Scan(
		&token.ID, &token.UserID, &token.TokenHash, &token.Email,
		&token.ExpiresAt, &token.UsedAt, &token.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &token, nil
}

func (r *EmailVerificationRepository) Create(ctx context.Context, userID, tokenHash, email string, expiresAt time.Time) (*models.EmailVerificationToken, error) {
	query := `
		INSERT INTO email_verification_tokens (user_id, token_hash, email, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + verificationColumns

	token, err := scanTokenRow(r.pool.QueryRow(ctx, query, userID, tokenHash, email, expiresAt))
	if err != nil {
		return nil, fmt.Errorf("failed to create email verification token: %w", err)
	}
	return token, nil
}

func (r *EmailVerificationRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.EmailVerificationToken, error) {
	query := `SELECT ` + verificationColumns + ` FROM email_verification_tokens WHERE token_hash = $1`
	return scanTokenRow(r.pool.QueryRow(ctx, query, tokenHash))
}

// Consume marks the token used and the owning user verified in one
// transaction. It returns ErrNotFound if the token was already spent.
func (r *EmailVerificationRepository) Consume(ctx context.Context, tokenID, userID string) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx,
			`UPDATE email_verification_tokens SET used_at = NOW() WHERE id = $1 AND used_at IS NULL`,
			tokenID,
		)
		if err != nil {
			return database.MapPostgresError(err)
		}
		if result.RowsAffected() == 0 {
			return models.ErrNotFound
		}

		result, err = tx.Exec(ctx,
			`UPDATE users SET email_verified = TRUE, updated_at = NOW() WHERE id = $1`,
			userID,
		)
		if err != nil {
			return database.MapPostgresError(err)
		}
		if result.RowsAffected() == 0 {
			return models.ErrNotFound
		}
		return nil
	})
}

// DeleteByUserID removes every token for a user so only the newest link works
func (r *EmailVerificationRepository) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM email_verification_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete tokens for user: %w", err)
	}
	return nil
}

// CleanupExpired deletes tokens that expired or were used before cutoff
func (r *EmailVerificationRepository) CleanupExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM email_verification_tokens
		WHERE expires_at < $1 OR (used_at IS NOT NULL AND used_at < $1)
	`

	result, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired tokens: %w", err)
	}
	return result.RowsAffected(), nil
}
