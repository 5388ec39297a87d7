// Package config loads the service configuration from YAML with ${ENV}
// placeholders expanded from the process environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/superst1/chatbot-whatsapp-citas/internal/models"
)

const DefaultPath = "configs/config.yaml"

type Config struct {
	Server struct {
		Port                   int    `yaml:"port"`
		VerifyToken            string `yaml:"verify_token"`
		AdminAPIKey            string `yaml:"admin_api_key"`
		ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
	} `yaml:"server"`

	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`

	Session struct {
		// Backend is memory, redis or failover (redis with memory fallback).
		Backend                string `yaml:"backend"`
		TTLMinutes             int    `yaml:"ttl_minutes"`
		CleanupIntervalSeconds int    `yaml:"cleanup_interval_seconds"`
	} `yaml:"session"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Storage struct {
		// Backend is memory, sheets, sqlite or postgres.
		Backend     string `yaml:"backend"`
		SQLitePath  string `yaml:"sqlite_path"`
		PostgresDSN string `yaml:"postgres_dsn"`
		Sheets      struct {
			SpreadsheetID     string `yaml:"spreadsheet_id"`
			SheetName         string `yaml:"sheet_name"`
			SkipHeader        bool   `yaml:"skip_header"`
			CredentialsBase64 string `yaml:"credentials_base64"`
		} `yaml:"sheets"`
	} `yaml:"storage"`

	Backup BackupConfig `yaml:"backup"`

	Locks struct {
		// Backend is local or redis. Redis locks are taken after the local one.
		Backend    string `yaml:"backend"`
		TTLSeconds int    `yaml:"ttl_seconds"`
	} `yaml:"locks"`

	NLU struct {
		// Provider is gemini, openai or rules.
		Provider       string `yaml:"provider"`
		APIKey         string `yaml:"api_key"`
		Model          string `yaml:"model"`
		BaseURL        string `yaml:"base_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"nlu"`

	WhatsApp struct {
		// Provider is cloud (Meta Graph API) or twilio.
		Provider      string `yaml:"provider"`
		BaseURL       string `yaml:"base_url"`
		APIVersion    string `yaml:"api_version"`
		PhoneNumberID string `yaml:"phone_number_id"`
		Token         string `yaml:"token"`
		Twilio        struct {
			AccountSID string `yaml:"account_sid"`
			AuthToken  string `yaml:"auth_token"`
			From       string `yaml:"from"`
		} `yaml:"twilio"`
	} `yaml:"whatsapp"`

	Telegram struct {
		Enabled  bool   `yaml:"enabled"`
		BotToken string `yaml:"bot_token"`
		Debug    bool   `yaml:"debug"`
	} `yaml:"telegram"`

	RateLimit struct {
		PerSecond float64 `yaml:"per_second"`
		Burst     int     `yaml:"burst"`
	} `yaml:"rate_limit"`

	Dispatcher struct {
		TurnTimeoutSeconds int   `yaml:"turn_timeout_seconds"`
		DedupeTTLMinutes   int   `yaml:"dedupe_ttl_minutes"`
		SendRetries        int   `yaml:"send_retries"`
		RetryDelaysMillis  []int `yaml:"retry_delays_ms"`
	} `yaml:"dispatcher"`

	Booking struct {
		RequiredFields []string `yaml:"required_fields"`
		ScheduleFile   string   `yaml:"schedule_file"`
		ReloadSeconds  int      `yaml:"reload_seconds"`
	} `yaml:"booking"`

	Reminders struct {
		Enabled     bool   `yaml:"enabled"`
		Hour        int    `yaml:"hour"`
		CountryCode string `yaml:"country_code"`
	} `yaml:"reminders"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
		GRPCHealthPort    int  `yaml:"grpc_health_port"`
	} `yaml:"monitoring"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse expands ${ENV} placeholders, decodes and applies defaults.
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Session.Backend == "" {
		c.Session.Backend = "memory"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/citas.db"
	}
	if c.Storage.Sheets.SheetName == "" {
		c.Storage.Sheets.SheetName = "CITAS"
	}
	if c.Storage.Sheets.CredentialsBase64 == "" {
		c.Storage.Sheets.CredentialsBase64 = os.Getenv("GOOGLE_CREDENTIALS_BASE64")
	}
	if c.Locks.Backend == "" {
		c.Locks.Backend = "local"
	}
	if c.NLU.Provider == "" {
		c.NLU.Provider = "rules"
	}
	if c.WhatsApp.Provider == "" {
		c.WhatsApp.Provider = "cloud"
	}
	if c.WhatsApp.APIVersion == "" {
		c.WhatsApp.APIVersion = "v17.0"
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "data/backups"
	}
	if c.Booking.ScheduleFile == "" {
		c.Booking.ScheduleFile = "configs/schedule.yaml"
	}
	if c.Reminders.Hour == 0 {
		c.Reminders.Hour = 9
	}
	if c.Reminders.CountryCode == "" {
		c.Reminders.CountryCode = "593"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c *Config) Validate() error {
	switch c.Session.Backend {
	case "memory", "redis", "failover":
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	switch c.Storage.Backend {
	case "memory", "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for postgres")
		}
	case "sheets":
		if c.Storage.Sheets.SpreadsheetID == "" {
			return fmt.Errorf("storage.sheets.spreadsheet_id is required for sheets")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch c.NLU.Provider {
	case "gemini", "openai", "rules":
	default:
		return fmt.Errorf("unknown nlu provider %q", c.NLU.Provider)
	}
	switch c.WhatsApp.Provider {
	case "cloud", "twilio":
	default:
		return fmt.Errorf("unknown whatsapp provider %q", c.WhatsApp.Provider)
	}
	if _, err := c.RequiredFields(); err != nil {
		return err
	}
	return nil
}

// RequiredFields parses booking.required_fields. Empty means the default policy.
func (c *Config) RequiredFields() ([]models.Field, error) {
	if len(c.Booking.RequiredFields) == 0 {
		return append([]models.Field(nil), models.DefaultRequiredFields...), nil
	}
	out := make([]models.Field, 0, len(c.Booking.RequiredFields))
	for _, raw := range c.Booking.RequiredFields {
		f, ok := models.ParseField(raw)
		if !ok {
			return nil, fmt.Errorf("unknown required field %q", strings.TrimSpace(raw))
		}
		out = append(out, f)
	}
	return out, nil
}

// EnsureDataDir creates the directory of the SQLite file.
func (c *Config) EnsureDataDir() error {
	if c.Storage.Backend != "sqlite" || c.Storage.SQLitePath == ":memory:" {
		return nil
	}
	return os.MkdirAll(filepath.Dir(c.Storage.SQLitePath), 0o755)
}

func (c *Config) SessionTTL() time.Duration {
	if c.Session.TTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Session.TTLMinutes) * time.Minute
}

func (c *Config) SessionCleanupInterval() time.Duration {
	if c.Session.CleanupIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.Session.CleanupIntervalSeconds) * time.Second
}

func (c *Config) LockTTL() time.Duration {
	if c.Locks.TTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Locks.TTLSeconds) * time.Second
}

func (c *Config) NLUTimeout() time.Duration {
	if c.NLU.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.NLU.TimeoutSeconds) * time.Second
}

func (c *Config) TurnTimeout() time.Duration {
	if c.Dispatcher.TurnTimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Dispatcher.TurnTimeoutSeconds) * time.Second
}

func (c *Config) DedupeTTL() time.Duration {
	if c.Dispatcher.DedupeTTLMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.Dispatcher.DedupeTTLMinutes) * time.Minute
}

// RetryDelays returns the send retry delays; nil means the dispatcher default.
func (c *Config) RetryDelays() []time.Duration {
	if len(c.Dispatcher.RetryDelaysMillis) == 0 {
		return nil
	}
	out := make([]time.Duration, len(c.Dispatcher.RetryDelaysMillis))
	for i, ms := range c.Dispatcher.RetryDelaysMillis {
		out[i] = time.Duration(ms) * time.Millisecond
	}
	return out
}

func (c *Config) ShutdownTimeout() time.Duration {
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

func (c *Config) ScheduleReloadInterval() time.Duration {
	if c.Booking.ReloadSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Booking.ReloadSeconds) * time.Second
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}
