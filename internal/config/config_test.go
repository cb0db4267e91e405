package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "SWEEP_INTERVAL", "STORE_MAX_ATTEMPTS", "CORS_ORIGINS", "JWT_SECRET", "REDIS_URL"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.SweepInterval)
	assert.Equal(t, 3, cfg.StoreMaxAttempts)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Empty(t, cfg.RedisURL)
	assert.Error(t, cfg.RequireJWTSecret())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SWEEP_INTERVAL", "250ms")
	t.Setenv("SWEEP_BATCH", "20")
	t.Setenv("CORS_ORIGINS", "https://app.example.com, http://localhost:3000")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.SweepInterval)
	assert.Equal(t, 20, cfg.SweepBatch)
	assert.Equal(t, []string{"https://app.example.com", "http://localhost:3000"}, cfg.CORSOrigins)
	assert.NoError(t, cfg.RequireJWTSecret())
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("LOCK_TTL", "soon")
	t.Setenv("STORE_MAX_ATTEMPTS", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOCK_TTL")
	assert.Contains(t, err.Error(), "STORE_MAX_ATTEMPTS")
}

func TestConnectionStrings(t *testing.T) {
	cfg := &Config{
		DBHost:     "db",
		DBPort:     "5433",
		DBUser:     "app",
		DBPassword: "p@ss",
		DBName:     "exams",
		DBSSLMode:  "require",
	}
	assert.Equal(t, "host=db port=5433 user=app password=p@ss dbname=exams sslmode=require", cfg.DSN())
	assert.Equal(t, "postgres://app:p%40ss@db:5433/exams?sslmode=require", cfg.MigrateURL())
}
