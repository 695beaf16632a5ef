// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for databases and symbol history files (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	// Market data provider
	MarketDataBaseURL string // Chart/fundamentals endpoint (empty = offline provider)

	// Unscoped monitoring analysis (empty ticker set) submitted on a schedule.
	// Empty schedule disables the monitor.
	MonitorSchedule string

	// Pipeline policy: when true a single failed research stage fails the whole
	// analysis instead of synthesizing from partial input.
	RequireAllStages bool

	Backup *BackupConfig
}

// BackupConfig holds S3/R2 backup configuration for the analyses database.
type BackupConfig struct {
	Enabled   bool
	Bucket    string
	Prefix    string
	Endpoint  string // Custom endpoint for R2 / S3-compatible storage (empty = AWS)
	Region    string
	AccessKey string
	SecretKey string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Determine data directory with fallback logic:
	// 1. Check CREW_DATA_DIR environment variable
	// 2. If not set, default to ./data
	// 3. Always resolve to absolute path and ensure it exists
	dataDir := getEnv("CREW_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:           absDataDir,
		Port:              getEnvAsInt("PORT", 8000),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DevMode:           getEnvAsBool("DEV_MODE", false),
		MarketDataBaseURL: getEnv("MARKET_DATA_URL", ""),
		MonitorSchedule:   getEnv("MONITOR_SCHEDULE", ""),
		RequireAllStages:  getEnvAsBool("REQUIRE_ALL_STAGES", false),
		Backup:            loadBackupConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Backup != nil && c.Backup.Enabled && c.Backup.Bucket == "" {
		return fmt.Errorf("BACKUP_BUCKET is required when backups are enabled")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// loadBackupConfig loads cloud backup configuration from environment variables
func loadBackupConfig() *BackupConfig {
	return &BackupConfig{
		Enabled:   getEnvAsBool("BACKUP_ENABLED", false),
		Bucket:    getEnv("BACKUP_BUCKET", ""),
		Prefix:    getEnv("BACKUP_PREFIX", "crew-backups"),
		Endpoint:  getEnv("BACKUP_ENDPOINT", ""),
		Region:    getEnv("BACKUP_REGION", "auto"),
		AccessKey: getEnv("BACKUP_ACCESS_KEY", ""),
		SecretKey: getEnv("BACKUP_SECRET_KEY", ""),
	}
}
