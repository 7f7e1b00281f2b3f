package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, SourceREST, cfg.Backend.Source)
	assert.Equal(t, 10*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, []string{"updated_at"}, cfg.Report.DiffIgnoredFields)
	assert.False(t, cfg.Report.MissingEqualsNull)
	assert.False(t, cfg.Security.AuthEnabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("EVENT_SOURCE", "Postgres")
	t.Setenv("DIFF_IGNORED_FIELDS", "updated_at, remember_token ,")
	t.Setenv("DIFF_MISSING_EQUALS_NULL", "true")
	t.Setenv("CORS_ORIGINS", "https://a.example.com,https://b.example.com")
	t.Setenv("BACKEND_TIMEOUT", "3s")
	t.Setenv("REPORT_TIMEZONE", "Asia/Jakarta")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, SourcePostgres, cfg.Backend.Source)
	assert.Equal(t, []string{"updated_at", "remember_token"}, cfg.Report.DiffIgnoredFields)
	assert.True(t, cfg.Report.MissingEqualsNull)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Security.CORSOrigins)
	assert.Equal(t, 3*time.Second, cfg.Backend.Timeout)

	loc, err := cfg.ReportLocation()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Jakarta", loc.String())
}

func TestLoad_EmptyIgnoreList(t *testing.T) {
	t.Setenv("DIFF_IGNORED_FIELDS", "-")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.Report.DiffIgnoredFields)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing port", func(c *Config) { c.Server.Port = "" }},
		{"relative base URL", func(c *Config) { c.Backend.BaseURL = "/api" }},
		{"unknown source", func(c *Config) { c.Backend.Source = "kafka" }},
		{"postgres without database", func(c *Config) { c.Backend.Source = SourcePostgres; c.Database.DBName = "" }},
		{"bad backend zone", func(c *Config) { c.Backend.Timezone = "Nowhere/City" }},
		{"bad report zone", func(c *Config) { c.Report.Timezone = "Nowhere/City" }},
		{"auth without secret", func(c *Config) { c.Security.AuthEnabled = true; c.Security.JWTSecret = "" }},
		{"cache without redis", func(c *Config) { c.Cache.Enabled = true; c.Redis.URL = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_GetDatabaseURL(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Contains(t, cfg.GetDatabaseURL(), "host=localhost port=5432")
	assert.Contains(t, cfg.GetDatabaseURL(), "connect_timeout=10")
}
