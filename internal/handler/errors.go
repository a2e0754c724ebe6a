package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"shorturl/internal/domain"
	"shorturl/pkg/logger"
)

// errorMapping pairs a domain sentinel with its response code and status
var errorMapping = []struct {
	err    error
	code   string
	status int
}{
	{domain.ErrInvalidLink, "not_found", http.StatusNotFound},
	{domain.ErrClickNotFound, "click_not_found", http.StatusNotFound},
	{domain.ErrSlugTaken, "slug_taken", http.StatusConflict},
	{domain.ErrSlugInvalid, "invalid_slug", http.StatusBadRequest},
	{domain.ErrInvalidURL, "invalid_url", http.StatusBadRequest},
	{domain.ErrNoDestinations, "no_destinations", http.StatusBadRequest},
	{domain.ErrTooManyDestinations, "too_many_destinations", http.StatusBadRequest},
	{domain.ErrTooManyVariants, "too_many_variants", http.StatusBadRequest},
	{domain.ErrInvalidInput, "invalid_request", http.StatusBadRequest},
	{domain.ErrQuotaExceeded, "quota_exceeded", http.StatusForbidden},
	{domain.ErrForbidden, "forbidden", http.StatusForbidden},
	{domain.ErrUnauthorized, "unauthorized", http.StatusUnauthorized},
	{domain.ErrRateLimitExceeded, "rate_limit_exceeded", http.StatusTooManyRequests},
}

// respondError maps domain errors to HTTP responses.
// Internal details are logged and never sent to the client.
func respondError(c *gin.Context, log *logger.Logger, err error) {
	var appErr *domain.AppError
	if errors.As(err, &appErr) && appErr.Internal {
		log.Errorw("Internal server error", "path", c.Request.URL.Path, "error", appErr.Err)
		_ = c.Error(err)
		c.JSON(appErr.StatusCode, domain.ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
			Code:    appErr.StatusCode,
		})
		return
	}

	for _, m := range errorMapping {
		if !errors.Is(err, m.err) {
			continue
		}
		status, message := m.status, m.err.Error()
		if appErr != nil {
			status, message = appErr.StatusCode, appErr.Message
		}
		c.JSON(status, domain.ErrorResponse{Error: m.code, Message: message, Code: status})
		return
	}

	if appErr != nil {
		c.JSON(appErr.StatusCode, domain.ErrorResponse{
			Error:   "client_error",
			Message: appErr.Message,
			Code:    appErr.StatusCode,
		})
		return
	}

	log.Errorw("Unexpected error", "path", c.Request.URL.Path, "error", err)
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, domain.ErrorResponse{
		Error:   "internal_error",
		Message: "An unexpected error occurred",
		Code:    http.StatusInternalServerError,
	})
}

// badRequest responds to malformed request bodies and parameters
func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, domain.ErrorResponse{
		Error:   "invalid_request",
		Message: message,
		Code:    http.StatusBadRequest,
	})
}
