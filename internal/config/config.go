package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/BrickRunner/exchangerate-bot/internal/domain"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	BotToken string `envconfig:"BOT_TOKEN" required:"true"`
	DBPath   string `envconfig:"DB_PATH" default:"./data/rates.db"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`  // debug|info|warn|error
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"` // /healthz and /metrics

	PollIntervalSec int `envconfig:"POLL_INTERVAL_SEC" default:"60"`
	ErrorBackoffSec int `envconfig:"ERROR_BACKOFF_SEC" default:"5"`

	DefaultCurrencies string `envconfig:"DEFAULT_CURRENCIES" default:"USD,EUR"`
	DefaultNotifyTime string `envconfig:"DEFAULT_NOTIFY_TIME" default:"08:00"`
	DefaultWorkdays   string `envconfig:"DEFAULT_WORKDAYS" default:"1,2,3,4,5"`
	DefaultUTCOffset  string `envconfig:"DEFAULT_UTC_OFFSET" default:"3"`

	RatesBaseURL string        `envconfig:"RATES_BASE_URL" default:"https://www.cbr-xml-daily.ru"`
	CBRBaseURL   string        `envconfig:"CBR_BASE_URL" default:"https://www.cbr.ru"`
	RatesTimeout time.Duration `envconfig:"RATES_TIMEOUT" default:"20s"`

	SendRatePerSec            float64 `envconfig:"SEND_RATE_PER_SEC" default:"25"`
	MarkSentOnDeliveryFailure bool    `envconfig:"MARK_SENT_ON_DELIVERY_FAILURE" default:"false"`
}

// Load reads an optional .env file and then environment variables into Config.
// Variables already set in the environment win over the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks values envconfig cannot check on its own.
func (c Config) Validate() error {
	if c.PollIntervalSec <= 0 {
		return fmt.Errorf("POLL_INTERVAL_SEC must be positive, got %d", c.PollIntervalSec)
	}
	if c.ErrorBackoffSec <= 0 {
		return fmt.Errorf("ERROR_BACKOFF_SEC must be positive, got %d", c.ErrorBackoffSec)
	}
	if c.RatesTimeout <= 0 {
		return fmt.Errorf("RATES_TIMEOUT must be positive, got %s", c.RatesTimeout)
	}
	if c.SendRatePerSec <= 0 {
		return fmt.Errorf("SEND_RATE_PER_SEC must be positive, got %v", c.SendRatePerSec)
	}
	if _, err := c.Defaults(); err != nil {
		return err
	}
	return nil
}

// Defaults converts the DEFAULT_* variables into domain defaults.
func (c Config) Defaults() (domain.Defaults, error) {
	var (
		d   domain.Defaults
		err error
	)
	if d.Currencies, err = domain.ParseCurrencies(c.DefaultCurrencies); err != nil {
		return d, fmt.Errorf("DEFAULT_CURRENCIES: %w", err)
	}
	if d.NotifyTime, err = domain.ParseClock(c.DefaultNotifyTime); err != nil {
		return d, fmt.Errorf("DEFAULT_NOTIFY_TIME: %w", err)
	}
	if d.Weekdays, err = domain.ParseWeekdays(c.DefaultWorkdays); err != nil {
		return d, fmt.Errorf("DEFAULT_WORKDAYS: %w", err)
	}
	if d.UTCOffset, err = domain.ParseOffset(c.DefaultUTCOffset); err != nil {
		return d, fmt.Errorf("DEFAULT_UTC_OFFSET: %w", err)
	}
	if err := d.Validate(); err != nil {
		return d, fmt.Errorf("defaults: %w", err)
	}
	return d, nil
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

func (c Config) Backoff() time.Duration {
	return time.Duration(c.ErrorBackoffSec) * time.Second
}
