package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration
// Supports environment variables with sensible defaults
//
// Environment Variables:
// Database Configuration:
// - DB_PATH: SQLite database path (default: data/sublearn.db)
//
// Provider Configuration:
// - OPENSUBTITLES_API_KEY: API key for OpenSubtitles (optional; external
//   lookups are disabled without it)
// - OPENSUBTITLES_API_URL: API endpoint URL (default: https://api.opensubtitles.com/api/v1)
// - OPENSUBTITLES_USER_AGENT: User-Agent header (default: sublearn v1.0)
// - PROVIDER_TIMEOUT: Request timeout in seconds (default: 30)
// - PROVIDER_MIN_INTERVAL_MS: Minimum milliseconds between requests (default: 1000)
//
// Cache Configuration:
// - CACHE_MAX_MEMORY_ITEMS: Memory tier capacity (default: 200)
// - CACHE_TTL_HOURS: Default entry TTL in hours (default: 24)
// - CACHE_EXTERNAL_TTL_HOURS: TTL for external results in hours (default: 48)
// - CACHE_CLEANUP_CRON: Cron expression for expired-entry sweeps (default: 0 * * * *)
//
// Processing Configuration:
// - SEGMENT_DURATION: Learning segment window in seconds (default: 30)
// - FREQUENCY_FILE: Word frequency list path (default: embedded English list)
//
// System Configuration:
// - LOG_LEVEL: debug, info, warn, error, or fatal (default: info)
// - TZ: Timezone (default: UTC)

type Config struct {
	Database DatabaseConfig `json:"database"`
	Provider ProviderConfig `json:"provider"`
	Cache    CacheConfig    `json:"cache"`
	Process  ProcessConfig  `json:"process"`
	System   SystemConfig   `json:"system"`
}

// DatabaseConfig holds the SQLite configuration
type DatabaseConfig struct {
	Path string `json:"path"`
}

// ProviderConfig holds the external subtitle provider configuration
type ProviderConfig struct {
	APIKey        string `json:"api_key"`
	APIURL        string `json:"api_url"`
	UserAgent     string `json:"user_agent"`
	Timeout       int    `json:"timeout"`         // seconds
	MinIntervalMS int    `json:"min_interval_ms"` // milliseconds between requests
}

// Enabled reports whether external lookups are configured
func (c ProviderConfig) Enabled() bool {
	return c.APIKey != ""
}

// CacheConfig holds the two-tier cache configuration
type CacheConfig struct {
	MaxMemoryItems   int    `json:"max_memory_items"`
	TTLHours         int    `json:"ttl_hours"`
	ExternalTTLHours int    `json:"external_ttl_hours"`
	CleanupCron      string `json:"cleanup_cron"`
}

// ProcessConfig holds enrichment and segmentation configuration
type ProcessConfig struct {
	SegmentDuration float64 `json:"segment_duration"` // seconds
	FrequencyFile   string  `json:"frequency_file"`
}

// SystemConfig holds the system configuration
type SystemConfig struct {
	LogLevel string `json:"log_level"`
	TZ       string `json:"tz"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		Database: DatabaseConfig{
			Path: getEnvString("DB_PATH", "data/sublearn.db"),
		},
		Provider: ProviderConfig{
			APIKey:        getEnvString("OPENSUBTITLES_API_KEY", ""),
			APIURL:        getEnvString("OPENSUBTITLES_API_URL", "https://api.opensubtitles.com/api/v1"),
			UserAgent:     getEnvString("OPENSUBTITLES_USER_AGENT", "sublearn v1.0"),
			Timeout:       getEnvInt("PROVIDER_TIMEOUT", 30),
			MinIntervalMS: getEnvInt("PROVIDER_MIN_INTERVAL_MS", 1000),
		},
		Cache: CacheConfig{
			MaxMemoryItems:   getEnvInt("CACHE_MAX_MEMORY_ITEMS", 200),
			TTLHours:         getEnvInt("CACHE_TTL_HOURS", 24),
			ExternalTTLHours: getEnvInt("CACHE_EXTERNAL_TTL_HOURS", 48),
			CleanupCron:      getEnvString("CACHE_CLEANUP_CRON", "0 * * * *"),
		},
		Process: ProcessConfig{
			SegmentDuration: getEnvFloat("SEGMENT_DURATION", 30),
			FrequencyFile:   getEnvString("FREQUENCY_FILE", ""),
		},
		System: SystemConfig{
			LogLevel: getEnvString("LOG_LEVEL", "info"),
			TZ:       getEnvString("TZ", "UTC"),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	// Validate required configuration
	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DB_PATH is required")
	}
	if c.Cache.MaxMemoryItems <= 0 {
		return fmt.Errorf("CACHE_MAX_MEMORY_ITEMS must be positive")
	}
	if c.Cache.TTLHours <= 0 || c.Cache.ExternalTTLHours <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if c.Process.SegmentDuration <= 0 {
		return fmt.Errorf("SEGMENT_DURATION must be positive")
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
