package handlers

import (
	"errors"
	"net/http"

	"github.com/BradenHooton/folio-auth/internal/models"
	pkghttp "github.com/BradenHooton/folio-auth/pkg/http"
)

type errorMapping struct {
	kind    error
	status  int
	code    string
	message string
}

// Ordered by precedence; the message is used when the error carries none
var errorMappings = []errorMapping{
	{models.ErrBadRequest, http.StatusBadRequest, "bad_request", "Invalid request"},
	{models.ErrUnauthorized, http.StatusUnauthorized, "unauthorized", "Authentication failed"},
	{models.ErrForbidden, http.StatusForbidden, "forbidden", "Access denied"},
	{models.ErrNotFound, http.StatusNotFound, "not_found", "Resource not found"},
	{models.ErrConflict, http.StatusConflict, "conflict", "Resource already exists"},
	{models.ErrTooManyRequests, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests. Please try again later."},
}

// writeServiceError translates a service error into the error envelope.
// Anything outside the taxonomy becomes a generic 500.
func writeServiceError(w http.ResponseWriter, err error) {
	var apiErr *models.Error
	hasMessage := errors.As(err, &apiErr)

	for _, m := range errorMappings {
		if !errors.Is(err, m.kind) {
			continue
		}
		message := m.message
		var details []string
		if hasMessage && apiErr.Message != "" {
			message = apiErr.Message
			details = apiErr.Details
		}
		pkghttp.WriteErrorWithDetails(w, m.status, m.code, message, details)
		return
	}

	pkghttp.WriteInternalError(w, "Internal server error")
}
