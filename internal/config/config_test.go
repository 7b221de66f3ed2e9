package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var requiredEnv = map[string]string{
	"DISCORD_TOKEN":      "token",
	"DISCORD_CHANNEL_ID": "123456",
	"EMAIL_USER":         "bot@example.com",
	"EMAIL_PASSWORD":     "secret",
	"EMAIL_HOST":         "imap.example.com",
}

func setRequired(t *testing.T) {
	t.Helper()
	for k, v := range requiredEnv {
		t.Setenv(k, v)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	setRequired(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 993, cfg.IMAP.Port)
	assert.True(t, cfg.IMAP.UseTLS)
	assert.Equal(t, "INBOX", cfg.IMAP.GetFolder())
	assert.Equal(t, time.Hour, cfg.PollInterval())
	assert.Equal(t, "flight", cfg.Filter.Keyword)
	assert.True(t, cfg.Render.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Render.RenderTimeout())
	assert.Equal(t, 0x5865F2, cfg.Discord.EmbedColor)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_MissingRequired(t *testing.T) {
	for key := range requiredEnv {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, "")

			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), key+" is required")
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("EMAIL_PORT", "143")
	t.Setenv("EMAIL_TLS", "false")
	t.Setenv("POLL_INTERVAL_MS", "60000")
	t.Setenv("DISCORD_EMBED_COLOR", "0xff0000")
	t.Setenv("RENDER_ENABLED", "0")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 143, cfg.IMAP.Port)
	assert.False(t, cfg.IMAP.UseTLS)
	assert.Equal(t, time.Minute, cfg.PollInterval())
	assert.Equal(t, 0xff0000, cfg.Discord.EmbedColor)
	assert.False(t, cfg.Render.Enabled)
}

func TestLoad_InvalidInteger(t *testing.T) {
	setRequired(t)
	t.Setenv("EMAIL_PORT", "not-a-port")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EMAIL_PORT must be a valid integer")
}

func TestLoad_PortOutOfRange(t *testing.T) {
	setRequired(t)
	t.Setenv("EMAIL_PORT", "70000")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EMAIL_PORT must be between")
}

func TestLoad_YAMLFileWithEnvPrecedence(t *testing.T) {
	for k := range requiredEnv {
		t.Setenv(k, "")
	}
	t.Setenv("EMAIL_PASSWORD", "from-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlData := `
log_level: debug
poll_interval_ms: 120000
imap:
  host: mail.example.org
  port: 1993
  username: user@example.org
  password: from-file
  folder: Travel
discord:
  token: file-token
  channel_id: "42"
filter:
  keyword: booking
`
	require.NoError(t, os.WriteFile(path, []byte(yamlData), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2*time.Minute, cfg.PollInterval())
	assert.Equal(t, "mail.example.org", cfg.IMAP.Host)
	assert.Equal(t, 1993, cfg.IMAP.Port)
	assert.Equal(t, "Travel", cfg.IMAP.GetFolder())
	assert.Equal(t, "from-env", cfg.IMAP.Password)
	assert.Equal(t, "42", cfg.Discord.ChannelID)
	assert.Equal(t, "booking", cfg.Filter.Keyword)
	assert.True(t, cfg.IMAP.UseTLS)
}

func TestLoad_MissingFile(t *testing.T) {
	setRequired(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestPollInterval_NonPositiveFallsBack(t *testing.T) {
	cfg := &Config{PollIntervalMS: -5}
	assert.Equal(t, time.Hour, cfg.PollInterval())
}
