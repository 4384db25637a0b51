package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the service. It is built once in
// main and handed to the components that need it; nothing reads the
// environment after Load returns.
type Config struct {
	HTTPPort    string
	DatabaseURL string
	LogLevel    string
	LogPretty   bool
	JWTSecret   string

	// Remote model settings. An empty GeminiAPIKey is allowed: the
	// assistant then runs in fallback-only mode.
	GeminiAPIKey       string
	GeminiModelChat    string
	GeminiModelComplex string
	GeminiMaxTokens    int
	GeminiTemperature  float64
	RequestTimeout     time.Duration

	// Assistant behavior.
	MaxHistoryTurns  int
	MaxDailyRequests int
	QuotaTimezone    string
	CacheTTL         time.Duration
	CacheMaxEntries  int
	BreakerThreshold int
	BreakerCooldown  time.Duration
	ComplexMinRunes  int
	MaxMessageRunes  int

	quotaLocation *time.Location
}

func Load() (*Config, error) {
	// Load .env file if it exists; a missing file just means the
	// environment is already populated.
	_ = godotenv.Load()

	cfg := &Config{
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", "butler.db"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogPretty:   getEnvAsBool("LOG_PRETTY", false),
		JWTSecret:   getEnv("JWT_SECRET", ""),

		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiModelChat:    getEnv("GEMINI_MODEL_CHAT", "gemini-1.5-flash-latest"),
		GeminiModelComplex: getEnv("GEMINI_MODEL_COMPLEX", "gemini-1.5-pro-latest"),
		GeminiMaxTokens:    getEnvAsInt("GEMINI_MAX_TOKENS", 1000),
		GeminiTemperature:  getEnvAsFloat("GEMINI_TEMPERATURE", 0.7),
		RequestTimeout:     getEnvAsDuration("AI_REQUEST_TIMEOUT", 30*time.Second),

		MaxHistoryTurns:  getEnvAsInt("AI_MAX_HISTORY_TURNS", 10),
		MaxDailyRequests: getEnvAsInt("AI_MAX_DAILY_REQUESTS", 1000),
		QuotaTimezone:    getEnv("AI_QUOTA_TIMEZONE", "Local"),
		CacheTTL:         getEnvAsDuration("AI_CACHE_TTL", time.Hour),
		CacheMaxEntries:  getEnvAsInt("AI_CACHE_MAX_ENTRIES", 512),
		BreakerThreshold: getEnvAsInt("AI_BREAKER_THRESHOLD", 3),
		BreakerCooldown:  getEnvAsDuration("AI_BREAKER_COOLDOWN", 60*time.Second),
		ComplexMinRunes:  getEnvAsInt("AI_COMPLEX_MIN_RUNES", 120),
		MaxMessageRunes:  getEnvAsInt("AI_MAX_MESSAGE_RUNES", 1000),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that would otherwise fail deep inside a
// component at an awkward time.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if c.MaxHistoryTurns <= 0 {
		return fmt.Errorf("AI_MAX_HISTORY_TURNS must be positive, got %d", c.MaxHistoryTurns)
	}
	if c.MaxDailyRequests <= 0 {
		return fmt.Errorf("AI_MAX_DAILY_REQUESTS must be positive, got %d", c.MaxDailyRequests)
	}
	if c.CacheMaxEntries <= 0 {
		return fmt.Errorf("AI_CACHE_MAX_ENTRIES must be positive, got %d", c.CacheMaxEntries)
	}
	if c.BreakerThreshold <= 0 {
		return fmt.Errorf("AI_BREAKER_THRESHOLD must be positive, got %d", c.BreakerThreshold)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("AI_REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.GeminiTemperature < 0 || c.GeminiTemperature > 2 {
		return fmt.Errorf("GEMINI_TEMPERATURE must be in [0, 2], got %g", c.GeminiTemperature)
	}
	loc, err := time.LoadLocation(c.QuotaTimezone)
	if err != nil {
		return fmt.Errorf("invalid AI_QUOTA_TIMEZONE %q: %w", c.QuotaTimezone, err)
	}
	c.quotaLocation = loc
	return nil
}

// QuotaLocation returns the timezone quota days are counted in. Validate
// must have succeeded first.
func (c *Config) QuotaLocation() *time.Location {
	if c.quotaLocation == nil {
		return time.Local
	}
	return c.quotaLocation
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
