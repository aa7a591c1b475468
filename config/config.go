// Package config loads service configuration from the environment and
// optional app.env files, with defaults suitable for local development.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	// Path is the SQLite database path; use ":memory:" for tests.
	Path string
}

type BillingConfig struct {
	// DefaultCurrency fills contracts submitted without one.
	DefaultCurrency string

	// WeekStart anchors every-N-weeks occurrence matching.
	WeekStart time.Weekday

	// UpcomingWindowDays bounds the dashboard due-date window.
	UpcomingWindowDays int
}

type SchedulerConfig struct {
	Enabled  bool
	Interval time.Duration
}

type AuthConfig struct {
	// AccessSecret enables JWT bearer auth on mutating routes when set.
	AccessSecret string
}

type Config struct {
	Environment string
	HTTP        HTTPConfig
	DB          DBConfig
	Billing     BillingConfig
	Scheduler   SchedulerConfig
	Auth        AuthConfig
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")
	v.AutomaticEnv()

	_ = v.ReadInConfig()

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		HTTP: HTTPConfig{
			Host: v.GetString("HTTP_HOST"),
			Port: v.GetInt("HTTP_PORT"),
		},
		DB: DBConfig{
			Path: v.GetString("DB_PATH"),
		},
		Billing: BillingConfig{
			DefaultCurrency:    v.GetString("BILLING_DEFAULT_CURRENCY"),
			UpcomingWindowDays: v.GetInt("BILLING_UPCOMING_WINDOW_DAYS"),
		},
		Scheduler: SchedulerConfig{
			Enabled:  v.GetBool("SCHEDULER_ENABLED"),
			Interval: v.GetDuration("SCHEDULER_INTERVAL"),
		},
		Auth: AuthConfig{
			AccessSecret: v.GetString("JWT_ACCESS_SECRET"),
		},
	}

	weekStart, err := parseWeekStart(v.GetString("BILLING_WEEK_START"))
	if err != nil {
		return nil, err
	}
	cfg.Billing.WeekStart = weekStart

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.DB.Path == "" {
		cfg.DB.Path = "contracts.db"
	}
	if cfg.Billing.DefaultCurrency == "" {
		cfg.Billing.DefaultCurrency = "EUR"
	}
	if cfg.Billing.UpcomingWindowDays == 0 {
		cfg.Billing.UpcomingWindowDays = 90
	}
	if cfg.Scheduler.Interval == 0 {
		cfg.Scheduler.Interval = time.Hour
	}
}

func parseWeekStart(raw string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "monday":
		return time.Monday, nil
	case "sunday":
		return time.Sunday, nil
	case "saturday":
		return time.Saturday, nil
	default:
		return 0, fmt.Errorf("BILLING_WEEK_START must be monday, sunday or saturday, got %q", raw)
	}
}
