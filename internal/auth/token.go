package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/folio-auth/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken   = errors.New("invalid or expired token")
	ErrWrongTokenType = errors.New("unexpected token type")
)

type TokenConfig struct {
	Secret        string
	Issuer        string
	Audience      string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// TokenPair is returned by login, register and refresh
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// TokenManager issues and verifies HS256 JWTs. Every token carries the
// user's session version so a password change invalidates older tokens.
type TokenManager struct {
	config TokenConfig
	now    func() time.Time
}

func NewTokenManager(config TokenConfig) *TokenManager {
	return &TokenManager{
		config: config,
		now:    time.Now,
	}
}

// IssuePair generates a fresh access and refresh token for user
func (tm *TokenManager) IssuePair(user *models.User) (*TokenPair, error) {
	access, err := tm.GenerateAccessToken(user)
	if err != nil {
		return nil, err
	}
	refresh, err := tm.GenerateRefreshToken(user)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(tm.config.AccessExpiry.Seconds()),
	}, nil
}

func (tm *TokenManager) GenerateAccessToken(user *models.User) (string, error) {
	return tm.sign(user, models.TokenTypeAccess, tm.config.AccessExpiry)
}

func (tm *TokenManager) GenerateRefreshToken(user *models.User) (string, error) {
	return tm.sign(user, models.TokenTypeRefresh, tm.config.RefreshExpiry)
}

func (tm *TokenManager) sign(user *models.User, tokenType string, ttl time.Duration) (string, error) {
	now := tm.now()

	claims := &models.TokenClaims{
		Type:           tokenType,
		UserID:         user.ID,
		Email:          user.Email,
		Role:           user.Role,
		SessionVersion: user.SessionVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			Issuer:    tm.config.Issuer,
			Audience:  jwt.ClaimStrings{tm.config.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(tm.config.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

// ValidateToken verifies signature, issuer, audience and lifetime and
// returns the claims. Callers check the token type.
func (tm *TokenManager) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	}
	if tm.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(tm.config.Issuer))
	}
	if tm.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(tm.config.Audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(tm.config.Secret), nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Type != models.TokenTypeAccess && claims.Type != models.TokenTypeRefresh {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// ValidateRefreshToken is ValidateToken restricted to refresh tokens
func (tm *TokenManager) ValidateRefreshToken(tokenString string) (*models.TokenClaims, error) {
	claims, err := tm.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != models.TokenTypeRefresh {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}
