package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidateGatewayModeRequiresSecret(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "gateway"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")

	cfg.Gateway.JWTSecret = "test-secret"
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "sideways"
	cfg.LogLevel = "loud"
	cfg.Engine.ReadBatch = 0
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "unknown log_level")
	assert.Contains(t, err.Error(), "read_batch")
	assert.Contains(t, err.Error(), "redis: addr")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRADECORE_REDIS_ADDR", "redis-prod:6379")
	t.Setenv("TRADECORE_ENGINE_SNAPSHOT_INTERVAL", "2m")
	t.Setenv("TRADECORE_GATEWAY_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("TRADECORE_POSTGRES_RUN_MIGRATIONS", "false")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, "redis-prod:6379", cfg.Redis.Addr)
	assert.Equal(t, 2*time.Minute, cfg.Engine.SnapshotInterval.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Gateway.CORSOrigins)
	assert.False(t, cfg.Postgres.RunMigrations)
}

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.Gateway.JWTSecret = "super-secret"
	cfg.S3.SecretKey = "aws-secret"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Gateway.JWTSecret)
	assert.Equal(t, "***", red.S3.SecretKey)
	// Originals stay untouched.
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
}
