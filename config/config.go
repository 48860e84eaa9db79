/*
Package config loads the server configuration.

PURPOSE:
  One YAML file with defaults for every key. Command-line flags in
  cmd/server override the file.

FILE FORMAT:
  server:
    port: 8080
  database:
    path: ./payroll.db
  tiering:
    granularity: day          # day | period
    regular_ceiling: 8
    overtime_ceiling: 12
  batch:
    concurrency: 4
  pay_period:
    type: biweekly            # weekly | biweekly | semi_monthly | monthly
    anchor: 2025-01-06        # first day of any weekly/biweekly period
  scheduler:
    enabled: false
    interval: 1h
    actor_id: scheduler
  log:
    level: info               # debug | info | warn | error
    format: json              # json | text
  seed_file: ""

SEE ALSO:
  - cmd/server/main.go: Flag overrides
  - payroll/tiering.go: TieringConfig
*/
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/pay-engine/payroll"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Tiering   TieringConfig   `yaml:"tiering"`
	Batch     BatchConfig     `yaml:"batch"`
	PayPeriod PayPeriodConfig `yaml:"pay_period"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Log       LogConfig       `yaml:"log"`
	SeedFile  string          `yaml:"seed_file"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type TieringConfig struct {
	Granularity     string  `yaml:"granularity"`
	RegularCeiling  float64 `yaml:"regular_ceiling"`
	OvertimeCeiling float64 `yaml:"overtime_ceiling"`
}

type BatchConfig struct {
	Concurrency int `yaml:"concurrency"`
}

type PayPeriodConfig struct {
	Type   string `yaml:"type"`
	Anchor string `yaml:"anchor"`
}

type SchedulerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	ActorID  string        `yaml:"actor_id"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server:   ServerConfig{Port: "8080"},
		Database: DatabaseConfig{Path: "./payroll.db"},
		Tiering: TieringConfig{
			Granularity:     string(payroll.GranularityDay),
			RegularCeiling:  8,
			OvertimeCeiling: 12,
		},
		Batch:     BatchConfig{Concurrency: 4},
		PayPeriod: PayPeriodConfig{Type: string(payroll.PeriodBiweekly), Anchor: "2025-01-06"},
		Scheduler: SchedulerConfig{Interval: time.Hour, ActorID: "scheduler"},
		Log:       LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if err := c.TieringConfig().Validate(); err != nil {
		return fmt.Errorf("tiering: %w", err)
	}
	if c.Batch.Concurrency < 1 {
		return fmt.Errorf("batch.concurrency must be at least 1, got %d", c.Batch.Concurrency)
	}
	pc, err := c.PeriodConfig()
	if err != nil {
		return err
	}
	if err := pc.Validate(); err != nil {
		return fmt.Errorf("pay_period: %w", err)
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	return nil
}

// TieringConfig converts the tiering section into the engine's type.
func (c Config) TieringConfig() payroll.TieringConfig {
	return payroll.TieringConfig{
		RegularCeiling:  decimal.NewFromFloat(c.Tiering.RegularCeiling),
		OvertimeCeiling: decimal.NewFromFloat(c.Tiering.OvertimeCeiling),
		Granularity:     payroll.Granularity(c.Tiering.Granularity),
	}
}

// PeriodConfig converts the pay_period section into the engine's type.
func (c Config) PeriodConfig() (payroll.PeriodConfig, error) {
	pc := payroll.PeriodConfig{Type: payroll.PeriodType(c.PayPeriod.Type)}
	if c.PayPeriod.Anchor != "" {
		anchor, err := time.Parse(payroll.DateLayout, c.PayPeriod.Anchor)
		if err != nil {
			return payroll.PeriodConfig{}, fmt.Errorf("pay_period.anchor: %w", err)
		}
		pc.Anchor = anchor
	}
	return pc, nil
}
