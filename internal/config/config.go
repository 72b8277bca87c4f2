package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	EnvDev   = "dev"
	EnvProd  = "prod"
	EnvLocal = "local"
)

// Config keeps runtime settings of the planner.
type Config struct {
	Env                 string `env:"ENV" env-default:"local" env-description:"dev, prod or local"`
	TelegramToken       string `env:"TELEGRAM_TOKEN" env-description:"Telegram bot token, required by the bot command"`
	DB                  DBConfig
	ReportIntervalHours int    `env:"REPORT_INTERVAL_HOURS" env-default:"5" env-description:"hours between reports, 0 disables"`
	ReportTime          string `env:"REPORT_TIME" env-description:"daily HH:MM report time, overrides the interval"`
	Timezone            string `env:"TIMEZONE" env-default:"Local"`
	DisplayWindowDays   int    `env:"DISPLAY_WINDOW_DAYS" env-default:"14"`
	MaxRecurrence       int    `env:"MAX_RECURRENCE_INSTANCES" env-default:"366"`
	MetricsAddr         string `env:"METRICS_ADDR" env-description:"listen address of /metrics, empty disables"`
}

type DBConfig struct {
	Driver string `env:"DB_DRIVER" env-default:"sqlite" env-description:"sqlite or postgres"`
	URL    string `env:"DATABASE_URL" env-default:"shared_planner.db" env-description:"sqlite file or postgres DSN"`
}

type Reader interface {
	Read() (*Config, error)
}

type EnvReader struct{}

func NewEnvReader() EnvReader {
	return EnvReader{}
}

func (EnvReader) Read() (*Config, error) {
	cfg := new(Config)
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	cfg, err := NewEnvReader().Read()
	if err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	cfg.TelegramToken = strings.TrimSpace(cfg.TelegramToken)
	if err := cfg.Validate(); err != nil {
		return *cfg, err
	}
	return *cfg, nil
}

// Validate checks values cleanenv cannot.
func (c Config) Validate() error {
	switch c.Env {
	case EnvDev, EnvProd, EnvLocal:
	default:
		return fmt.Errorf("unknown env %q", c.Env)
	}
	if c.ReportIntervalHours < 0 {
		return fmt.Errorf("REPORT_INTERVAL_HOURS must not be negative")
	}
	if c.DisplayWindowDays <= 0 {
		return fmt.Errorf("DISPLAY_WINDOW_DAYS must be positive")
	}
	if c.MaxRecurrence <= 0 {
		return fmt.Errorf("MAX_RECURRENCE_INSTANCES must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// RequireTelegram reports a missing bot token.
func (c Config) RequireTelegram() error {
	if c.TelegramToken == "" {
		return errors.New("TELEGRAM_TOKEN is required")
	}
	return nil
}

// ReportInterval is the period of the report job, zero when disabled.
func (c Config) ReportInterval() time.Duration {
	return time.Duration(c.ReportIntervalHours) * time.Hour
}

// Location resolves TIMEZONE.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE: %w", err)
	}
	return loc, nil
}

// Usage describes the supported variables.
func Usage() string {
	text, err := cleanenv.GetDescription(&Config{}, nil)
	if err != nil {
		return err.Error()
	}
	return text
}
