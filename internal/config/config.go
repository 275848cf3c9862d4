// Package config holds the explicit run configuration for the export
// pipeline. Everything the pipeline needs (paths, the date range, the
// MotherDuck token) is a field here, loaded once at startup and passed in;
// core logic never reads ambient process state.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// envPrefix namespaces the environment variables, e.g.
// LENDERPULSE_MOTHERDUCK_TOKEN.
const envPrefix = "LENDERPULSE"

// Config is the complete run configuration.
type Config struct {
	// MotherDuckToken authenticates against the hosted query engine.
	MotherDuckToken string `yaml:"motherduck_token" envconfig:"MOTHERDUCK_TOKEN" validate:"required"`

	// SQLFilePath is the query template with {start_date}, {end_date} and
	// {lender_name} placeholders.
	SQLFilePath string `yaml:"sql_file_path" envconfig:"SQL_FILE_PATH" default:"exports_results.sql" validate:"required"`

	// TierFilePath is the static competitor classification table (.csv or .xlsx).
	TierFilePath string `yaml:"tier_file_path" envconfig:"TIER_FILE_PATH" default:"competitor-list.csv" validate:"required"`

	// OutputDir receives the per-lender export files.
	OutputDir string `yaml:"output_dir" envconfig:"OUTPUT_DIR" default:"output" validate:"required"`

	// ResultDir receives the combined all-lenders export.
	ResultDir string `yaml:"result_dir" envconfig:"RESULT_DIR" default:"result" validate:"required"`

	// StartDate and EndDate bound the query window, RFC 3339.
	StartDate string `yaml:"start_date" envconfig:"START_DATE" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	EndDate   string `yaml:"end_date" envconfig:"END_DATE" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`

	// ReportDate anchors the 3-month ranking window, YYYY-MM-DD. Empty means
	// today.
	ReportDate string `yaml:"report_date" envconfig:"REPORT_DATE" validate:"omitempty,datetime=2006-01-02"`
}

// Load builds the configuration from environment variables, overlaid by the
// YAML file at configPath when one exists, then validates it. An empty
// configPath skips the file step.
func Load(configPath string) (*Config, error) {
	var cfg Config

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// ReportTime parses ReportDate, defaulting to the current day when unset.
func (c *Config) ReportTime() (time.Time, error) {
	if c.ReportDate == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse("2006-01-02", c.ReportDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse report date: %w", err)
	}
	return t, nil
}
