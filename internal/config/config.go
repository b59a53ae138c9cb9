package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Note     NoteConfig     `yaml:"note"`
	Billing  BillingConfig  `yaml:"billing"`
	Auth     AuthConfig     `yaml:"auth"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig selects the storage backend. URL wins over Path when set;
// it may be a postgres:// or libsql:// URL.
type DatabaseConfig struct {
	Path string `yaml:"path"`
	URL  string `yaml:"url"`
}

// DSN returns the connection string handed to store.Open.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return d.Path
}

// NoteConfig holds the note.com account to fetch statistics for.
type NoteConfig struct {
	Email          string  `yaml:"email"`
	Password       string  `yaml:"password"`
	URLName        string  `yaml:"urlname"`
	BaseURL        string  `yaml:"base_url"`
	PagesPerSecond float64 `yaml:"pages_per_second"`
	Timeout        string  `yaml:"timeout"`
}

// ParseTimeout returns the request timeout as time.Duration.
func (n NoteConfig) ParseTimeout() time.Duration {
	return parseDuration(n.Timeout, 30*time.Second)
}

// BillingConfig configures the Stripe entitlement check. Billing is disabled
// when SecretKey is empty.
type BillingConfig struct {
	SecretKey   string `yaml:"stripe_secret_key"`
	BaseURL     string `yaml:"stripe_base_url"`
	PaymentLink string `yaml:"payment_link"`
	CacheTTL    string `yaml:"cache_ttl"`
}

// ParseCacheTTL returns the entitlement cache lifetime as time.Duration.
func (b BillingConfig) ParseCacheTTL() time.Duration {
	return parseDuration(b.CacheTTL, 10*time.Minute)
}

// AuthConfig configures accounts. With accounts disabled every request runs
// as the local owner derived from the note.com email.
type AuthConfig struct {
	Enabled    bool   `yaml:"enabled"`
	JWTSecret  string `yaml:"jwt_secret"`
	TokenTTL   string `yaml:"token_ttl"`
	AdminEmail string `yaml:"admin_email"`
}

// ParseTokenTTL returns the session token lifetime as time.Duration.
func (a AuthConfig) ParseTokenTTL() time.Duration {
	return parseDuration(a.TokenTTL, 24*time.Hour)
}

// ScheduleConfig configures the daily fetch.
type ScheduleConfig struct {
	Cron string `yaml:"cron"`
	// FetchOnStart runs one fetch as soon as the daemon starts.
	FetchOnStart bool `yaml:"fetch_on_start"`
}

// AlertsConfig configures digest destinations.
type AlertsConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Webhook WebhookConfig `yaml:"webhook"`
	// Top is how many growing articles a digest lists.
	Top int `yaml:"top"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook alerts.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
	// MaxUploadMB caps one import request.
	MaxUploadMB int64 `yaml:"max_upload_mb"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./notepulse.db"},
		Note: NoteConfig{
			BaseURL:        "https://note.com",
			PagesPerSecond: 2,
			Timeout:        "30s",
		},
		Billing: BillingConfig{
			BaseURL:  "https://api.stripe.com",
			CacheTTL: "10m",
		},
		Auth:     AuthConfig{TokenTTL: "24h"},
		Schedule: ScheduleConfig{Cron: "0 6 * * *"},
		Alerts:   AlertsConfig{Top: 5},
		Server:   ServerConfig{Port: 8080, MaxUploadMB: 32},
		Log:      LogConfig{Level: "info"},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NOTEPULSE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("NOTE_EMAIL"); v != "" {
		cfg.Note.Email = v
	}
	if v := os.Getenv("NOTE_PASSWORD"); v != "" {
		cfg.Note.Password = v
	}
	if v := os.Getenv("NOTE_URLNAME"); v != "" {
		cfg.Note.URLName = v
	}
	if v := os.Getenv("STRIPE_SECRET_KEY"); v != "" {
		cfg.Billing.SecretKey = v
	}
	if v := os.Getenv("STRIPE_PAYMENT_LINK"); v != "" {
		cfg.Billing.PaymentLink = v
	}
	if v := os.Getenv("ADMIN_EMAIL"); v != "" {
		cfg.Auth.AdminEmail = v
	}
	if v := os.Getenv("NOTEPULSE_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
		cfg.Auth.Enabled = true
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
