package auth

import (
	"testing"
	"time"

	"github.com/BradenHooton/folio-auth/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTokenConfig() TokenConfig {
	return TokenConfig{
		Secret:        "test-secret-32-characters-long!!",
		Issuer:        "folio-auth",
		Audience:      "folio-web",
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: 7 * 24 * time.Hour,
	}
}

func testUser() *models.User {
	return &models.User{ID: "user-1", Email: "user@example.com", Role: "user", SessionVersion: 3}
}

func TestTokenManager_IssueAndValidate(t *testing.T) {
	tm := NewTokenManager(testTokenConfig())

	pair, err := tm.IssuePair(testUser())
	require.NoError(t, err)
	assert.Equal(t, int64(900), pair.ExpiresIn)

	access, err := tm.ValidateToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, models.TokenTypeAccess, access.Type)
	assert.Equal(t, "user-1", access.UserID)
	assert.Equal(t, 3, access.SessionVersion)
	assert.Equal(t, "folio-auth", access.Issuer)
	assert.NotEmpty(t, access.ID)

	refresh, err := tm.ValidateRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, models.TokenTypeRefresh, refresh.Type)
	assert.NotEqual(t, access.ID, refresh.ID)
}

func TestTokenManager_ValidateRefreshRejectsAccess(t *testing.T) {
	tm := NewTokenManager(testTokenConfig())
	access, err := tm.GenerateAccessToken(testUser())
	require.NoError(t, err)

	_, err = tm.ValidateRefreshToken(access)
	assert.ErrorIs(t, err, ErrWrongTokenType)
}

func TestTokenManager_RejectsExpired(t *testing.T) {
	tm := NewTokenManager(testTokenConfig())
	issued := time.Now().Add(-time.Hour)
	tm.now = func() time.Time { return issued }

	token, err := tm.GenerateAccessToken(testUser())
	require.NoError(t, err)

	tm.now = time.Now
	_, err = tm.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_RejectsWrongSecretIssuerAudience(t *testing.T) {
	token, err := NewTokenManager(testTokenConfig()).GenerateAccessToken(testUser())
	require.NoError(t, err)

	otherSecret := testTokenConfig()
	otherSecret.Secret = "another-secret-32-characters-long"
	_, err = NewTokenManager(otherSecret).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	otherIssuer := testTokenConfig()
	otherIssuer.Issuer = "someone-else"
	_, err = NewTokenManager(otherIssuer).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	otherAudience := testTokenConfig()
	otherAudience.Audience = "mobile"
	_, err = NewTokenManager(otherAudience).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_RejectsOtherAlgorithms(t *testing.T) {
	cfg := testTokenConfig()
	claims := &models.TokenClaims{
		Type:   models.TokenTypeAccess,
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti",
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(cfg.Secret))
	require.NoError(t, err)

	_, err = NewTokenManager(cfg).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = NewTokenManager(cfg).ValidateToken(none)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_RejectsGarbage(t *testing.T) {
	_, err := NewTokenManager(testTokenConfig()).ValidateToken("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
