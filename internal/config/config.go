package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	machinestatus "factory-monitor/internal/machinestatus/domain"
	"factory-monitor/internal/machinestatus/interfaces/report"
)

// ReportConfig controls exported reports.
type ReportConfig struct {
	report.Header   `yaml:",inline"`
	Title           string `yaml:"title"`
	WeeklyAfterDays int    `yaml:"weekly_after_days"`
}

// Options returns renderer options for the report section.
func (c ReportConfig) Options() report.Options {
	return report.Options{
		Header:          c.Header,
		Title:           c.Title,
		WeeklyAfterDays: c.WeeklyAfterDays,
	}
}

// Config is the service configuration.
type Config struct {
	DatabaseURL        string              `yaml:"database_url"`
	HTTPAddr           string              `yaml:"http_addr"`
	Timezone           string              `yaml:"timezone"`
	AggregationWorkers int                 `yaml:"aggregation_workers"`
	JWTSecret          string              `yaml:"-"`
	IngestSecret       string              `yaml:"-"`
	IngestSkewSeconds  int                 `yaml:"ingest_max_skew_seconds"`
	Tiers              machinestatus.Tiers `yaml:"tiers"`
	Report             ReportConfig        `yaml:"report"`
}

// Load reads the environment, then overlays FACTORY_MONITOR_CONFIG when set.
// Secrets are only read from the environment.
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:        getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:           getenvDefault("HTTP_ADDR", ":8080"),
		Timezone:           getenvDefault("TIMEZONE", "Local"),
		AggregationWorkers: getenvIntDefault("AGGREGATION_WORKERS", 4),
		JWTSecret:          getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		IngestSecret:       getenvDefault("INGEST_HMAC_SECRET", ""),
		IngestSkewSeconds:  getenvIntDefault("INGEST_MAX_SKEW_SECONDS", 300),
		Tiers:              machinestatus.DefaultTiers(),
		Report: ReportConfig{
			Title:           getenvDefault("REPORT_TITLE", ""),
			WeeklyAfterDays: getenvIntDefault("REPORT_WEEKLY_AFTER_DAYS", report.DefaultWeeklyAfterDays),
		},
	}

	if path := os.Getenv("FACTORY_MONITOR_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail at request time.
func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: http addr required")
	}
	if c.AggregationWorkers <= 0 {
		return errors.New("config: aggregation workers must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if err := c.Tiers.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Report.WeeklyAfterDays < 0 {
		return errors.New("config: report weekly_after_days must not be negative")
	}
	return nil
}

// Location resolves Timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// IngestMaxSkew returns the accepted clock skew of signed ingest requests.
func (c Config) IngestMaxSkew() time.Duration {
	return time.Duration(c.IngestSkewSeconds) * time.Second
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
