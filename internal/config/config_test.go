package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "database:\n  dbname: scout\n"))
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "browser", cfg.Source.Driver)
	assert.Equal(t, 5, cfg.Source.MaxPages)
	assert.Equal(t, 30*time.Minute, cfg.Monitor.UrgentInterval)
	assert.Equal(t, 24*time.Hour, cfg.Monitor.UrgentWindow())
	assert.True(t, *cfg.Source.Headless)
	assert.Equal(t, 2*time.Second, cfg.Rate.MinDelay)
	assert.Equal(t, 5*time.Second, cfg.Rate.MaxDelay)
	assert.Equal(t, 15, cfg.Rate.RequestsPerMinute)
	assert.Equal(t, 50.0, cfg.Profit.MinPercentage)
	assert.Equal(t, FeesConfig{FinalValueRate: 0.136, PaymentRate: 0.0235, FixedFee: 0.30}, cfg.Profit.Fees)
	assert.Equal(t, DefaultRedFlags, cfg.Watch.RedFlags)
	assert.Contains(t, cfg.Watch.SeedKeywords, "sterling silver")
	assert.Equal(t, 2*time.Hour, cfg.Monitor.Interval)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("SCOUT_TEST_DB_PASSWORD", "s3cret")

	cfg, err := Load(writeConfig(t, `
database:
  password: ${SCOUT_TEST_DB_PASSWORD}
source:
  driver: http
  headless: false
rate:
  min_delay: 1s
  max_delay: 3s
watch:
  red_flags: [fake]
`))
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Contains(t, cfg.Database.DSN(), "password=s3cret")
	assert.Equal(t, "http", cfg.Source.Driver)
	assert.False(t, *cfg.Source.Headless)
	assert.Equal(t, time.Second, cfg.Rate.MinDelay)
	assert.Equal(t, []string{"fake"}, cfg.Watch.RedFlags)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "delay bounds inverted",
			content: "rate:\n  min_delay: 10s\n  max_delay: 2s\n",
		},
		{
			name:    "strong buy below min",
			content: "profit:\n  min_percentage: 80\n  strong_buy_percentage: 60\n",
		},
		{
			name:    "unknown driver",
			content: "source:\n  driver: curl\n",
		},
		{
			name:    "unbounded pages",
			content: "source:\n  max_pages: -1\n",
		},
		{
			name:    "negative urgent window",
			content: "monitor:\n  urgent_hours: -2\n",
		},
		{
			name:    "unknown timezone",
			content: "parser:\n  timezone: Mars/Olympus\n",
		},
		{
			name:    "malformed yaml",
			content: "rate: [",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
