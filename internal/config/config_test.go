package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"server": {"port": 9090},
		"database": {"db_name": "from_file"},
		"storage": {"driver": "s3", "bucket": "file-bucket"}
	}`), 0o600))

	t.Setenv("DATABASE_DBNAME", "from_env")
	t.Setenv("JWT_TTL", "2h")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.vn, https://b.example.vn")
	t.Setenv("SEARCH_ENABLED", "true")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "from_env", cfg.Database.DBName)
	assert.Equal(t, "file-bucket", cfg.Storage.Bucket)
	assert.Equal(t, 2*time.Hour, cfg.Security.TokenTTL)
	assert.Equal(t, []string{"https://a.example.vn", "https://b.example.vn"}, cfg.Server.AllowedOrigins)
	assert.True(t, cfg.Search.Enabled)
	assert.True(t, cfg.NeedsAWS())
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Workers.ReminderWindow)
}

func TestLoadConfigRejectsBadEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "eighty")
	_, err := LoadConfig("")
	assert.ErrorContains(t, err, "SERVER_PORT")
}

func TestValidate(t *testing.T) {
	cfg := defaults()
	cfg.Security.JWTSecret = "0123456789abcdef"
	require.NoError(t, cfg.Validate())

	cfg.Environment = "production"
	cfg.Search.Enabled = true
	cfg.Bootstrap.AdminUsername = "admin"
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "memory is not allowed")
	assert.ErrorContains(t, err, "search.addresses")
	assert.ErrorContains(t, err, "bootstrap admin")
}

func TestRedactedHidesPassword(t *testing.T) {
	db := DatabaseConfig{User: "portal", Password: "s3cret", Host: "db", Port: 5432, DBName: "docs", SSLMode: "disable"}
	assert.NotContains(t, db.Redacted(), "s3cret")
	assert.Contains(t, db.GetDatabaseURL(), "s3cret")
}
