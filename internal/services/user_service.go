package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/folio-auth/internal/models"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)

	SetOTP(ctx context.Context, id, otpHash string, generatedAt time.Time) error
	ClearOTP(ctx context.Context, id string) error
	IncrementOTPAttempts(ctx context.Context, id string, maxAttempts int) (int, bool, error)

	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	ClearResetToken(ctx context.Context, id string) error
	ConsumeResetToken(ctx context.Context, id, tokenHash, passwordHash string) (int, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) (int, error)

	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// UserService serves the signed-in user's profile
type UserService struct {
	repo   UserRepository
	logger *slog.Logger
}

func NewUserService(repo UserRepository, logger *slog.Logger) *UserService {
	return &UserService{
		repo:   repo,
		logger: logger,
	}
}

// Me returns the public profile for userID
func (s *UserService) Me(ctx context.Context, userID string) (*models.PublicUser, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.NotFound("User not found")
		}
		s.logger.Error("failed to get user", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	public := user.Public()
	return &public, nil
}
