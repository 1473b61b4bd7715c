package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/storefront/internal/config"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_USER", "postgres")
	t.Setenv("DB_NAME", "storefront")
	t.Setenv("KHALTI_SECRET_KEY", "test_secret_key")
	t.Setenv("JWT_SECRET", "jwt-secret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := config.Load("", "")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "5432", cfg.Postgres.Port)
	assert.Equal(t, "disable", cfg.Postgres.SSLMode)
	assert.Equal(t, "https://khalti.com/api/v2/payment/verify/", cfg.Khalti.VerifyURL)
	assert.Equal(t, 3, cfg.Khalti.MaxAttempts)
	assert.Equal(t, "/media/", cfg.Media.URL)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_YAMLThenEnvOverride(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_PORT", "9090")
	t.Setenv("KHALTI_TIMEOUT", "3s")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
app:
  port: "8000"
  env: production
postgres:
  max_conns: 20
khalti:
  max_attempts: 5
  timeout: 30s
media:
  root: /var/lib/storefront/media
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := config.Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.App.Port, "env should win over yaml")
	assert.Equal(t, "production", cfg.App.Env)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, int32(20), cfg.Postgres.MaxConns)
	assert.Equal(t, 5, cfg.Khalti.MaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.Khalti.Timeout)
	assert.Equal(t, "/var/lib/storefront/media", cfg.Media.Root)
}

func TestLoad_MissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("KHALTI_SECRET_KEY", "")
	os.Unsetenv("KHALTI_SECRET_KEY")

	_, err := config.Load("", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KHALTI_SECRET_KEY is required")
}

func TestLoad_InvalidDuration(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("JWT_TTL", "forever")

	_, err := config.Load("", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JWT_TTL")
}

func TestLoad_MissingEnvFileIsIgnored(t *testing.T) {
	setRequiredEnv(t)

	_, err := config.Load("", filepath.Join(t.TempDir(), "nope.env"))
	require.NoError(t, err)
}
