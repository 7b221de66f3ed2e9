package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"go.yaml.in/yaml/v4"
)

const (
	defaultPollIntervalMS  = 3_600_000
	defaultRenderTimeoutMS = 30_000
	defaultEmbedColor      = 0x5865F2
	defaultKeyword         = "flight"
)

// Config is the top-level application configuration.
type Config struct {
	LogLevel       string  `yaml:"log_level"`
	PollIntervalMS int     `yaml:"poll_interval_ms"`
	IMAP           IMAP    `yaml:"imap"`
	Discord        Discord `yaml:"discord"`
	Filter         Filter  `yaml:"filter"`
	Render         Render  `yaml:"render"`
}

// IMAP holds the monitored mailbox settings.
type IMAP struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	UseTLS   bool   `yaml:"use_tls"`
	Folder   string `yaml:"folder"`
}

// Discord holds the chat destination.
type Discord struct {
	Token      string `yaml:"token"`
	ChannelID  string `yaml:"channel_id"`
	EmbedColor int    `yaml:"embed_color"`
}

// Filter selects which messages are published.
type Filter struct {
	Keyword string `yaml:"keyword"`
}

// Render controls email snapshots.
type Render struct {
	Enabled   bool `yaml:"enabled"`
	TimeoutMS int  `yaml:"timeout_ms"`
}

// PollInterval returns the delay between poll cycles.
func (c *Config) PollInterval() time.Duration {
	if c.PollIntervalMS <= 0 {
		return defaultPollIntervalMS * time.Millisecond
	}
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// RenderTimeout returns the per-snapshot deadline.
func (r *Render) RenderTimeout() time.Duration {
	if r.TimeoutMS <= 0 {
		return defaultRenderTimeoutMS * time.Millisecond
	}
	return time.Duration(r.TimeoutMS) * time.Millisecond
}

// GetFolder returns the IMAP folder name, defaulting to "INBOX".
func (i *IMAP) GetFolder() string {
	if i.Folder == "" {
		return "INBOX"
	}
	return i.Folder
}

// Load builds the configuration from defaults, an optional YAML file and
// the environment, in that order of precedence.
func Load(path string) (*Config, error) {
	cfg := &Config{
		LogLevel:       "info",
		PollIntervalMS: defaultPollIntervalMS,
		IMAP: IMAP{
			Port:   993,
			UseTLS: true,
			Folder: "INBOX",
		},
		Discord: Discord{EmbedColor: defaultEmbedColor},
		Filter:  Filter{Keyword: defaultKeyword},
		Render: Render{
			Enabled:   true,
			TimeoutMS: defaultRenderTimeoutMS,
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Discord.Token, "DISCORD_TOKEN")
	setString(&c.Discord.ChannelID, "DISCORD_CHANNEL_ID")
	setString(&c.IMAP.Username, "EMAIL_USER")
	setString(&c.IMAP.Password, "EMAIL_PASSWORD")
	setString(&c.IMAP.Host, "EMAIL_HOST")
	setString(&c.IMAP.Folder, "EMAIL_FOLDER")
	setString(&c.Filter.Keyword, "FILTER_KEYWORD")
	setString(&c.LogLevel, "LOG_LEVEL")

	if err := setInt(&c.IMAP.Port, "EMAIL_PORT"); err != nil {
		return err
	}
	if err := setInt(&c.PollIntervalMS, "POLL_INTERVAL_MS"); err != nil {
		return err
	}
	if err := setInt(&c.Render.TimeoutMS, "RENDER_TIMEOUT_MS"); err != nil {
		return err
	}
	if err := setInt(&c.Discord.EmbedColor, "DISCORD_EMBED_COLOR"); err != nil {
		return err
	}
	if err := setBool(&c.IMAP.UseTLS, "EMAIL_TLS"); err != nil {
		return err
	}
	return setBool(&c.Render.Enabled, "RENDER_ENABLED")
}

func (c *Config) validate() error {
	if c.Discord.Token == "" {
		return fmt.Errorf("DISCORD_TOKEN is required")
	}
	if c.Discord.ChannelID == "" {
		return fmt.Errorf("DISCORD_CHANNEL_ID is required")
	}
	if c.IMAP.Host == "" {
		return fmt.Errorf("EMAIL_HOST is required")
	}
	if c.IMAP.Username == "" {
		return fmt.Errorf("EMAIL_USER is required")
	}
	if c.IMAP.Password == "" {
		return fmt.Errorf("EMAIL_PASSWORD is required")
	}
	if c.IMAP.Port <= 0 || c.IMAP.Port > 65535 {
		return fmt.Errorf("EMAIL_PORT must be between 1 and 65535")
	}
	if strings.TrimSpace(c.Filter.Keyword) == "" {
		return fmt.Errorf("FILTER_KEYWORD must not be blank")
	}
	return nil
}

// LogConfig logs configuration values, excluding secrets.
func (c *Config) LogConfig(logger *slog.Logger) {
	logger.Info("configuration loaded",
		slog.String("imap_host", c.IMAP.Host),
		slog.Int("imap_port", c.IMAP.Port),
		slog.Bool("imap_tls", c.IMAP.UseTLS),
		slog.String("imap_folder", c.IMAP.GetFolder()),
		slog.String("channel_id", c.Discord.ChannelID),
		slog.Duration("poll_interval", c.PollInterval()),
		slog.String("keyword", c.Filter.Keyword),
		slog.Bool("render", c.Render.Enabled),
		slog.String("log_level", c.LogLevel),
	)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 0, 64)
	if err != nil {
		return fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	*dst = int(n)
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s must be a valid boolean: %w", key, err)
	}
	*dst = b
	return nil
}
