package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Domain-specific errors for handler mapping and caller checks
var (
	// ErrInvalidLink is returned when a code is unknown, soft-deleted or expired
	ErrInvalidLink = errors.New("link not found or expired")

	// ErrInvalidURL is returned when a destination URL is malformed or unsafe
	ErrInvalidURL = errors.New("invalid URL format")

	// ErrSlugInvalid is returned when a custom slug has invalid characters or length
	ErrSlugInvalid = errors.New("invalid slug format")

	// ErrSlugTaken is returned when a custom slug is already in use
	ErrSlugTaken = errors.New("slug is already in use")

	// ErrNoDestinations is returned when a link is submitted without destinations
	ErrNoDestinations = errors.New("at least one destination is required")

	// ErrTooManyDestinations is returned when the tier destination cap is exceeded
	ErrTooManyDestinations = errors.New("too many destinations for plan")

	// ErrTooManyVariants is returned when the tier metadata cap is exceeded
	ErrTooManyVariants = errors.New("too many metadata variants for plan")

	// ErrQuotaExceeded is returned when the owner has reached the link quota
	ErrQuotaExceeded = errors.New("short link quota exceeded")

	// ErrInvalidInput is returned for malformed request fields without a more specific sentinel
	ErrInvalidInput = errors.New("invalid input")

	// ErrRateLimitExceeded is returned when rate limit is hit
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrClickNotFound is returned when a click id does not exist
	ErrClickNotFound = errors.New("click not found")

	// ErrUnauthorized is returned when a caller identity is required but missing
	ErrUnauthorized = errors.New("authentication required")

	// ErrForbidden is returned when the caller does not own the link
	ErrForbidden = errors.New("not allowed to modify this link")
)

// AppError wraps errors with additional context for better debugging
type AppError struct {
	Err        error  // Original error
	Message    string // User-friendly message
	StatusCode int    // HTTP status code
	Internal   bool   // Whether to log as internal error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

// Unwrap returns the wrapped error for errors.Is and errors.As
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error with context
func NewAppError(err error, message string, statusCode int, internal bool) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		StatusCode: statusCode,
		Internal:   internal,
	}
}

// NewNotFoundError creates a 404 error
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Err:        ErrInvalidLink,
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

// NewValidationError creates a 400 validation error wrapping a sentinel
func NewValidationError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// NewInternalError creates a 500 internal server error
func NewInternalError(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "Internal server error occurred",
		StatusCode: http.StatusInternalServerError,
		Internal:   true, // Log this error
	}
}

// IsInternal reports whether err is a storage or infrastructure failure
func IsInternal(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Internal
}
