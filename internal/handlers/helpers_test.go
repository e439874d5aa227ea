package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/folio-auth/internal/auth"
	"github.com/BradenHooton/folio-auth/internal/models"
	pkghttp "github.com/BradenHooton/folio-auth/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "handler-test")
	return req
}

// WithAuthContext adds access token claims to the request context
func WithAuthContext(req *http.Request, userID, email string) *http.Request {
	claims := &models.TokenClaims{
		UserID: userID,
		Email:  email,
		Type:   models.TokenTypeAccess,
	}
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

// WithURLParam sets a chi route parameter on the request
func WithURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// successEnvelope mirrors pkghttp.SuccessResponse with raw metadata
type successEnvelope struct {
	Message  string          `json:"message"`
	Metadata json.RawMessage `json:"metadata"`
}

// AssertSuccess checks status and decodes the success envelope; metadata is
// decoded into target when it is non-nil
func AssertSuccess(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) successEnvelope {
	t.Helper()
	require.Equal(t, expectedStatus, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var env successEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	if target != nil {
		require.NoError(t, json.Unmarshal(env.Metadata, target))
	}
	return env
}

// AssertErrorResponse checks the error envelope
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedMessage string) pkghttp.ErrorResponse {
	t.Helper()
	require.Equal(t, expectedStatus, w.Code, w.Body.String())

	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, expectedStatus, resp.Code)
	if expectedMessage != "" {
		assert.Equal(t, expectedMessage, resp.Message)
	}
	return resp
}
