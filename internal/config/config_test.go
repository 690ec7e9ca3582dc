package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 0
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 60, cfg.Automation.TickIntervalSeconds)
	assert.Equal(t, 100, cfg.Automation.BatchSize)
	assert.Equal(t, 5, cfg.Automation.MaxStepAttempts)
	assert.Equal(t, 10, cfg.Automation.DispatchTimeoutSeconds)
	assert.Equal(t, "https://api.twilio.com", cfg.Twilio.BaseURL)
	assert.Equal(t, "us-west-2", cfg.SES.Region)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadExplicitValues(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  host: 10.0.0.5
automation:
  enabled: true
  tick_interval_seconds: 15
  batch_size: 25
  max_step_attempts: 3
twilio:
  account_sid: AC123
  from_number: "+15555550100"
  enabled: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Automation.Enabled)
	assert.Equal(t, 15, cfg.Automation.TickIntervalSeconds)
	assert.Equal(t, 25, cfg.Automation.BatchSize)
	assert.Equal(t, 3, cfg.Automation.MaxStepAttempts)
	assert.Equal(t, "AC123", cfg.Twilio.AccountSID)
	assert.True(t, cfg.Twilio.Enabled)
}

func TestLoadRedactPIIFlag(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
logging:
  level: debug
  redact_pii: false
`))
	require.NoError(t, err)
	require.NotNil(t, cfg.Logging.RedactPII)
	assert.False(t, *cfg.Logging.RedactPII)

	// Absent flag stays nil so the logger default applies.
	cfg, err = Load(writeConfig(t, `
logging:
  level: info
`))
	require.NoError(t, err)
	assert.Nil(t, cfg.Logging.RedactPII)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://local/dev
twilio:
  auth_token: from-yaml
`)

	t.Setenv("DATABASE_URL", "postgres://prod/crm")
	t.Setenv("REDIS_URL", "redis://cache:6379/0")
	t.Setenv("TWILIO_AUTH_TOKEN", "from-env")
	t.Setenv("AUTOMATION_TICK_SECONDS", "30")
	t.Setenv("AUTOMATION_BATCH_SIZE", "not-a-number")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://prod/crm", cfg.Database.URL)
	assert.Equal(t, "redis://cache:6379/0", cfg.Redis.URL)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "from-env", cfg.Twilio.AuthToken)
	assert.Equal(t, 30, cfg.Automation.TickIntervalSeconds)
	// Malformed numeric override keeps the default
	assert.Equal(t, 100, cfg.Automation.BatchSize)
}

func TestTickIntervalDuration(t *testing.T) {
	c := AutomationConfig{TickIntervalSeconds: 45}
	assert.Equal(t, "45s", c.TickInterval().String())
}
