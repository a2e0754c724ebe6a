package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"shorturl/internal/ratelimit"
)

// Storage, cache and limiter backends
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
	DriverRedis    = "redis"
)

// Config holds all application configurations
// All sensitive values are loaded from .env
type Config struct {
	// Server Configuration
	Environment string
	ServerPort  string
	LogLevel    string

	// Storage
	StorageDriver string

	// DB configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis configuration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Redirect cache
	CacheDriver string
	CacheTTL    time.Duration

	// Rate limiting
	RateLimitDriver string
	RateLimitWindow time.Duration
	RateLimits      ratelimit.Policy

	// Application settings
	BaseURL                string   // Base URL for generating short links
	ShortCodeLength        int      // Length of generated short codes
	JWTSecret              string   // Shared secret of the account service tokens
	AllowedRedirectDomains []string // Empty allows any public host
	AllowedOrigins         []string // CORS and websocket origins, empty allows any
	EntitlementPolicyFile  string   // Overrides the embedded tier table

	// Click analytics
	RequireTrackingConsent bool
	ClickWaitBudget        time.Duration
	ClickWriteTimeout      time.Duration
	GeoAPIURL              string
	GeoTimeout             time.Duration
	GeoRequestsPerSecond   float64

	// Live updates across instances, empty keeps them process-local
	NATSURL string
}

// LoadConfig loads configuration from environment variables
// Returns error if required environment variables are missing
func LoadConfig() (*Config, error) {
	cfg := &Config{
		// Server defaults
		Environment: getEnv("ENVIRONMENT", "development"),
		ServerPort:  getEnv("SERVER_PORT", "8081"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		StorageDriver: strings.ToLower(getEnv("STORAGE_DRIVER", DriverPostgres)),

		// Database configuration
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "shorturl"),
		DBSSLMode:  getEnv("DB_SSL_MODE", "disable"),

		// Redis configuration
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		CacheDriver: strings.ToLower(getEnv("CACHE_DRIVER", DriverMemory)),
		CacheTTL:    time.Duration(getEnvAsInt("CACHE_TTL_SECONDS", 300)) * time.Second,

		RateLimitDriver: strings.ToLower(getEnv("RATE_LIMIT_DRIVER", DriverMemory)),
		RateLimitWindow: time.Duration(getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
		RateLimits:      loadRateLimits(),

		// Application settings
		BaseURL:                strings.TrimRight(getEnv("BASE_URL", "http://localhost:8081"), "/"),
		ShortCodeLength:        getEnvAsInt("SHORT_CODE_LENGTH", 6),
		JWTSecret:              getEnv("JWT_SECRET", ""),
		AllowedRedirectDomains: getEnvAsList("ALLOWED_REDIRECT_DOMAINS"),
		AllowedOrigins:         getEnvAsList("ALLOWED_ORIGINS"),
		EntitlementPolicyFile:  getEnv("ENTITLEMENT_POLICY_FILE", ""),

		RequireTrackingConsent: getEnvAsBool("REQUIRE_TRACKING_CONSENT", true),
		ClickWaitBudget:        time.Duration(getEnvAsInt("CLICK_WAIT_BUDGET_MS", 250)) * time.Millisecond,
		ClickWriteTimeout:      time.Duration(getEnvAsInt("CLICK_WRITE_TIMEOUT_MS", 5000)) * time.Millisecond,
		GeoAPIURL:              getEnv("GEO_API_URL", ""),
		GeoTimeout:             time.Duration(getEnvAsInt("GEO_TIMEOUT_MS", 500)) * time.Millisecond,
		GeoRequestsPerSecond:   getEnvAsFloat("GEO_REQUESTS_PER_SECOND", 10),

		NATSURL: getEnv("NATS_URL", ""),
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration is present and valid
func (c *Config) Validate() error {
	// Validate database password in production
	if c.Environment == "production" && c.StorageDriver == DriverPostgres && c.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required in production")
	}

	if c.Environment == "production" && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}

	// Validate short code length (must be between 4 and 12)
	if c.ShortCodeLength < 4 || c.ShortCodeLength > 12 {
		return fmt.Errorf("SHORT_CODE_LENGTH must be between 4 and 12, got %d", c.ShortCodeLength)
	}

	// Validate base URL
	if c.BaseURL == "" {
		return fmt.Errorf("BASE_URL is required")
	}

	switch c.StorageDriver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMemory, c.StorageDriver)
	}
	switch c.CacheDriver {
	case DriverMemory, DriverRedis:
	default:
		return fmt.Errorf("CACHE_DRIVER must be %q or %q, got %q", DriverMemory, DriverRedis, c.CacheDriver)
	}
	switch c.RateLimitDriver {
	case DriverMemory, DriverRedis:
	default:
		return fmt.Errorf("RATE_LIMIT_DRIVER must be %q or %q, got %q", DriverMemory, DriverRedis, c.RateLimitDriver)
	}

	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL_SECONDS must be positive")
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW_SECONDS must be positive")
	}
	if c.ClickWaitBudget <= 0 || c.ClickWriteTimeout < c.ClickWaitBudget {
		return fmt.Errorf("CLICK_WRITE_TIMEOUT_MS must be at least CLICK_WAIT_BUDGET_MS and both positive")
	}
	if c.GeoAPIURL != "" && !strings.Contains(c.GeoAPIURL, "{ip}") {
		return fmt.Errorf("GEO_API_URL must contain the {ip} placeholder")
	}

	return nil
}

// UsesRedis reports whether any component needs a Redis connection
func (c *Config) UsesRedis() bool {
	return c.CacheDriver == DriverRedis || c.RateLimitDriver == DriverRedis
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// loadRateLimits starts from the default thresholds and applies
// RATE_LIMIT_<CLASS>_ANON / RATE_LIMIT_<CLASS>_AUTH overrides
func loadRateLimits() ratelimit.Policy {
	policy := ratelimit.DefaultPolicy()
	for class, t := range policy {
		prefix := "RATE_LIMIT_" + strings.ToUpper(string(class))
		t.Anonymous = getEnvAsInt(prefix+"_ANON", t.Anonymous)
		t.Authenticated = getEnvAsInt(prefix+"_AUTH", t.Authenticated)
		policy[class] = t
	}
	return policy
}

// Helper functions for reading environment variables

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt reads an environment variable as integer or returns default
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsFloat reads an environment variable as float or returns default
func getEnvAsFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool reads an environment variable as boolean or returns default
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsList reads a comma separated list, dropping blanks
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
