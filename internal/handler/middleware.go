package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"shorturl/internal/auth"
	"shorturl/internal/config"
	"shorturl/internal/domain"
	"shorturl/internal/ratelimit"
	"shorturl/pkg/logger"
)

// userIDKey is the gin context key holding the authenticated user id
const userIDKey = "user_id"

// LoggerMiddleware logs HTTP requests with structured logging
func LoggerMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		// Process request
		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		fields := []interface{}{
			"status", statusCode,
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"ip", c.ClientIP(),
			"latency", latency,
			"user_agent", c.Request.UserAgent(),
		}
		if userID := UserID(c); userID != "" {
			fields = append(fields, "user_id", userID)
		}
		if errs := c.Errors.ByType(gin.ErrorTypePrivate).String(); errs != "" {
			fields = append(fields, "error", errs)
		}

		switch {
		case statusCode >= http.StatusInternalServerError:
			log.Errorw("HTTP request", fields...)
		case statusCode >= http.StatusBadRequest:
			log.Warnw("HTTP request", fields...)
		default:
			log.Infow("HTTP request", fields...)
		}
	}
}

// CORSMiddleware handles Cross-Origin Resource Sharing
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Allow configured origins, any origin in development
		_, ok := allowed[origin]
		if origin != "" && (ok || (cfg.IsDevelopment() && len(allowed) == 0)) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Vary", "Origin")
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		c.Writer.Header().Set("Access-Control-Allow-Headers",
			"Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// SecurityHeadersMiddleware adds security-related headers
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")
		c.Writer.Header().Set("X-Frame-Options", "DENY")
		c.Writer.Header().Set("Referrer-Policy", "no-referrer-when-downgrade")
		c.Writer.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Writer.Header().Set("Content-Security-Policy", "default-src 'self'; img-src * data:")

		c.Next()
	}
}

// IdentityMiddleware extracts the caller id from a bearer token. Requests
// without a token stay anonymous; an invalid token is rejected. Websocket
// clients may pass the token as the access_token query parameter.
func IdentityMiddleware(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" || tokens == nil {
			c.Next()
			return
		}

		claims, err := tokens.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, domain.ErrorResponse{
				Error:   "unauthorized",
				Message: "Invalid or expired token",
				Code:    http.StatusUnauthorized,
			})
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return c.Query("access_token")
}

// RequireUser rejects anonymous callers
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserID(c) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, domain.ErrorResponse{
				Error:   "unauthorized",
				Message: "Authentication required",
				Code:    http.StatusUnauthorized,
			})
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user id or empty
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// RateLimitMiddleware applies the fixed-window limit of one traffic class.
// Windows are keyed by client IP; authentication only selects the higher
// threshold. Limiter failures are logged and the request is let through.
func RateLimitMiddleware(limiter ratelimit.Limiter, class ratelimit.Class, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		allowed, err := limiter.Allow(c.Request.Context(), class, key, UserID(c) != "")
		if err != nil {
			log.Warnw("Rate limiter unavailable", "class", class, "error", err)
		}

		if !allowed {
			log.Infow("Rate limit exceeded", "class", class, "key", key)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, domain.ErrorResponse{
				Error:   "rate_limit_exceeded",
				Message: "Too many requests, please try again later",
				Code:    http.StatusTooManyRequests,
			})
			return
		}

		c.Next()
	}
}

// TimeoutMiddleware sets a timeout for request processing
func TimeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
