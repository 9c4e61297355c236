package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	// Twitter credentials
	BearerToken       string
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string

	// Bot identity
	BotUserID string
	BotHandle string

	// Rewrite service
	TranslatorURL string

	// Pipeline
	PollInterval  time.Duration
	MaxConcurrent int

	// Storage
	StorageType string // "sqlite" or "postgres"
	SQLitePath  string
	PostgresURL string

	// API Server
	APIPort string
	APIHost string

	// CLI
	APIEndpoint string

	// Logging
	LogLevel string
	LogJSON  bool
}

// Load loads the configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	return &Config{
		BearerToken:       getEnv("BEARER_TOKEN", ""),
		ConsumerKey:       getEnv("CONSUMER_KEY", ""),
		ConsumerSecret:    getEnv("CONSUMER_SECRET", ""),
		AccessToken:       getEnv("ACCESS_TOKEN_KEY", ""),
		AccessTokenSecret: getEnv("ACCESS_TOKEN_SECRET", ""),
		BotUserID:         getEnv("BOT_USER_ID", "1640149719447109633"),
		BotHandle:         getEnv("BOT_HANDLE", "nvctranslator"),
		TranslatorURL:     getEnv("TRANSLATOR_URL", "https://nvctranslator.com/post"),
		PollInterval:      getEnvDuration("POLL_INTERVAL", 61*time.Second),
		MaxConcurrent:     getEnvInt("MAX_CONCURRENT", 30),
		StorageType:       getEnv("STORAGE_TYPE", "sqlite"),
		SQLitePath:        getEnv("SQLITE_PATH", "./nvcbot.db"),
		PostgresURL:       getEnv("POSTGRES_URL", ""),
		APIPort:           getEnv("API_PORT", "8080"),
		APIHost:           getEnv("API_HOST", "localhost"),
		APIEndpoint:       getEnv("API_ENDPOINT", "http://localhost:8080"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogJSON:           getEnvBool("LOG_JSON", false),
	}, nil
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.BearerToken == "" {
		return &ConfigError{Field: "BEARER_TOKEN", Message: "bearer token is required"}
	}
	if c.BotUserID == "" {
		return &ConfigError{Field: "BOT_USER_ID", Message: "bot user id is required"}
	}
	if c.BotHandle == "" {
		return &ConfigError{Field: "BOT_HANDLE", Message: "bot handle is required"}
	}
	if c.TranslatorURL == "" {
		return &ConfigError{Field: "TRANSLATOR_URL", Message: "translator URL is required"}
	}
	if c.MaxConcurrent <= 0 {
		return &ConfigError{Field: "MAX_CONCURRENT", Message: "must be a positive integer"}
	}
	if c.StorageType != "sqlite" && c.StorageType != "postgres" {
		return &ConfigError{Field: "STORAGE_TYPE", Message: "must be 'sqlite' or 'postgres'"}
	}
	if c.StorageType == "postgres" && c.PostgresURL == "" {
		return &ConfigError{Field: "POSTGRES_URL", Message: "PostgreSQL URL is required when STORAGE_TYPE is 'postgres'"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
