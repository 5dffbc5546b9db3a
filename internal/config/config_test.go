package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every key Load reads so a developer's .env or shell cannot
// leak into the test.
func clearEnv(t *testing.T) {
	for _, k := range []string{
		"STORE", "DATABASE_URL", "PG_DSN", "PGHOST", "PGPORT", "PGUSER", "PGPASSWORD", "PGDATABASE", "PGSSLMODE",
		"NATS_URL", "SUBJECT_PREFIX", "LOG_NATS_SUBJECTS", "REDIS_URL", "LOCATION_TTL_SEC",
		"HTTP_ADDR", "PORT", "JWT_SECRET", "CORS_ORIGINS", "REQUEST_TIMEOUT_MS", "METRICS_ADDR",
		"SESSION_SYNC_INTERVAL_SEC",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE", "memory")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.NATSURL)
	assert.Equal(t, "transit", cfg.SubjectPrefix)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORSOrigins)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 5*time.Minute, cfg.LocationTTL)
	assert.False(t, cfg.LogNATSSubjects)
	assert.Equal(t, time.Minute, cfg.SessionSyncInterval)
}

func TestLoadBuildsDSNFromPGVars(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PGHOST", "db")
	t.Setenv("PGUSER", "app")
	t.Setenv("PGPASSWORD", "p@ss:word")
	t.Setenv("PGDATABASE", "transit")
	t.Setenv("PORT", "9000")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("LOG_NATS_SUBJECTS", "yes")
	t.Setenv("SESSION_SYNC_INTERVAL_SEC", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, "postgres://app:p%40ss%3Aword@db:5432/transit?sslmode=disable", cfg.DatabaseURL)
	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.True(t, cfg.LogNATSSubjects)
	assert.Zero(t, cfg.SessionSyncInterval)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{"STORE": "memory"}},
		{"missing database", map[string]string{"JWT_SECRET": "x"}},
		{"unknown store", map[string]string{"JWT_SECRET": "x", "STORE": "mongo"}},
		{"bad ttl", map[string]string{"JWT_SECRET": "x", "STORE": "memory", "LOCATION_TTL_SEC": "-1"}},
		{"bad timeout", map[string]string{"JWT_SECRET": "x", "STORE": "memory", "REQUEST_TIMEOUT_MS": "soon"}},
		{"bad sync interval", map[string]string{"JWT_SECRET": "x", "STORE": "memory", "SESSION_SYNC_INTERVAL_SEC": "-5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
