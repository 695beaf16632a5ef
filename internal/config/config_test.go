package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CREW_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.DevMode)
	assert.Empty(t, cfg.MarketDataBaseURL)
	assert.Empty(t, cfg.MonitorSchedule)
	assert.False(t, cfg.RequireAllStages)
	require.NotNil(t, cfg.Backup)
	assert.False(t, cfg.Backup.Enabled)
	assert.Equal(t, "crew-backups", cfg.Backup.Prefix)
	assert.Equal(t, "auto", cfg.Backup.Region)
	assert.True(t, filepath.IsAbs(cfg.DataDir))
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CREW_DATA_DIR", t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("MARKET_DATA_URL", "https://data.example.com")
	t.Setenv("MONITOR_SCHEDULE", "0 0 9 * * 1-5")
	t.Setenv("REQUIRE_ALL_STAGES", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, "https://data.example.com", cfg.MarketDataBaseURL)
	assert.Equal(t, "0 0 9 * * 1-5", cfg.MonitorSchedule)
	assert.True(t, cfg.RequireAllStages)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("CREW_DATA_DIR", t.TempDir())
	t.Setenv("PORT", "not-a-port")
	t.Setenv("DEV_MODE", "not-a-bool")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Port)
	assert.False(t, cfg.DevMode)
}

func TestLoadBackupConfig(t *testing.T) {
	t.Setenv("CREW_DATA_DIR", t.TempDir())
	t.Setenv("BACKUP_ENABLED", "true")
	t.Setenv("BACKUP_BUCKET", "crew-data")
	t.Setenv("BACKUP_ENDPOINT", "https://r2.example.com")
	t.Setenv("BACKUP_ACCESS_KEY", "key")
	t.Setenv("BACKUP_SECRET_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	require.NotNil(t, cfg.Backup)
	assert.True(t, cfg.Backup.Enabled)
	assert.Equal(t, "crew-data", cfg.Backup.Bucket)
	assert.Equal(t, "https://r2.example.com", cfg.Backup.Endpoint)
}

func TestValidateBackupRequiresBucket(t *testing.T) {
	t.Setenv("CREW_DATA_DIR", t.TempDir())
	t.Setenv("BACKUP_ENABLED", "true")
	t.Setenv("BACKUP_BUCKET", "")

	_, err := Load()
	assert.Error(t, err)
}
