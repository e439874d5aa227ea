package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/folio-auth/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUsers struct {
	user *models.User
	err  error
}

func (s stubUsers) GetByID(context.Context, string) (*models.User, error) {
	return s.user, s.err
}

type stubRevocation struct {
	revoked bool
	err     error
}

func (s stubRevocation) IsTokenRevoked(context.Context, string) (bool, error) {
	return s.revoked, s.err
}

func runMiddleware(t *testing.T, a *Authenticator, header string) (*httptest.ResponseRecorder, *models.TokenClaims) {
	t.Helper()

	var seen *models.TokenClaims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUserFromContext(r)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	a.Middleware(next).ServeHTTP(rec, req)
	return rec, seen
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Status  string `json:"status"`
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body.Status)
	assert.Equal(t, rec.Code, body.Code)
	return body.Message
}

func TestAuthenticator(t *testing.T) {
	tm := NewTokenManager(testTokenConfig())
	user := testUser()
	pair, err := tm.IssuePair(user)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	newAuth := func(users stubUsers, rev TokenRevocationChecker, failClosed bool) *Authenticator {
		return NewAuthenticator(tm, rev, users, MiddlewareConfig{FailClosed: failClosed}, logger)
	}

	t.Run("valid access token passes and exposes claims", func(t *testing.T) {
		rec, claims := runMiddleware(t, newAuth(stubUsers{user: user}, stubRevocation{}, false), "Bearer "+pair.AccessToken)
		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, claims)
		assert.Equal(t, "user-1", claims.UserID)
	})

	t.Run("missing header", func(t *testing.T) {
		rec, _ := runMiddleware(t, newAuth(stubUsers{user: user}, nil, false), "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Authentication required", errorMessage(t, rec))
	})

	t.Run("wrong scheme", func(t *testing.T) {
		rec, _ := runMiddleware(t, newAuth(stubUsers{user: user}, nil, false), "Basic abc")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("refresh token rejected", func(t *testing.T) {
		rec, _ := runMiddleware(t, newAuth(stubUsers{user: user}, nil, false), "Bearer "+pair.RefreshToken)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Invalid token type", errorMessage(t, rec))
	})

	t.Run("revoked token rejected", func(t *testing.T) {
		rec, _ := runMiddleware(t, newAuth(stubUsers{user: user}, stubRevocation{revoked: true}, false), "Bearer "+pair.AccessToken)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("revocation failure fails open by default", func(t *testing.T) {
		rec, _ := runMiddleware(t, newAuth(stubUsers{user: user}, stubRevocation{err: errors.New("db")}, false), "Bearer "+pair.AccessToken)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("revocation failure fails closed when configured", func(t *testing.T) {
		rec, _ := runMiddleware(t, newAuth(stubUsers{user: user}, stubRevocation{err: errors.New("db")}, true), "Bearer "+pair.AccessToken)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("stale session version rejected after password change", func(t *testing.T) {
		changed := *user
		changed.SessionVersion = user.SessionVersion + 1
		rec, _ := runMiddleware(t, newAuth(stubUsers{user: &changed}, nil, false), "Bearer "+pair.AccessToken)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Session expired. Please log in again.", errorMessage(t, rec))
	})

	t.Run("locked account rejected", func(t *testing.T) {
		locked := *user
		locked.AccountLocked = true
		rec, _ := runMiddleware(t, newAuth(stubUsers{user: &locked}, nil, false), "Bearer "+pair.AccessToken)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("deleted user rejected", func(t *testing.T) {
		rec, _ := runMiddleware(t, newAuth(stubUsers{err: models.ErrNotFound}, nil, false), "Bearer "+pair.AccessToken)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("user lookup failure is a server error", func(t *testing.T) {
		rec, _ := runMiddleware(t, newAuth(stubUsers{err: errors.New("db down")}, nil, false), "Bearer "+pair.AccessToken)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestClaimsContextHelpers(t *testing.T) {
	assert.Nil(t, ClaimsFromContext(context.Background()))

	claims := &models.TokenClaims{UserID: "u"}
	ctx := WithClaims(context.Background(), claims)
	assert.Same(t, claims, ClaimsFromContext(ctx))
	assert.True(t, TokenExpiry(claims).IsZero())
}
