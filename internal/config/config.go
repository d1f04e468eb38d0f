package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/mirajehossain/relmigrate/internal/retry"
)

type Config struct {
	Provider        string `yaml:"provider" validate:"required,oneof=sqlite sqlite3 postgres postgresql pg mysql"`
	DSN             string `yaml:"dsn" validate:"required"`
	AdminDSN        string `yaml:"admin_dsn"`
	Dir             string `yaml:"dir"`
	JSON            bool   `yaml:"json"`
	Verbose         bool   `yaml:"verbose"`
	LockTimeoutSec  int    `yaml:"lock_timeout_sec" validate:"gte=0"`
	MigrationsTable string `yaml:"migrations_table" validate:"required"`
	ProductVersion  string `yaml:"product_version"`
	// BatchSeparator overrides the provider's script separator when set.
	BatchSeparator *string `yaml:"batch_separator"`
	Retry          Retry   `yaml:"retry"`
}

// Retry overrides the provider's default retry policy. Zero fields keep the
// default.
type Retry struct {
	retry.Policy   `yaml:",inline"`
	TransientCodes []string `yaml:"transient_codes"`
}

func Default() *Config {
	return &Config{
		Provider:        "sqlite",
		LockTimeoutSec:  30,
		MigrationsTable: "__MigrationsHistory",
	}
}

func LoadYAML(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func MergeEnv(cfg *Config) *Config {
	if v := os.Getenv("DB_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DSN = v
	}
	if v := os.Getenv("DB_ADMIN_DSN"); v != "" {
		cfg.AdminDSN = v
	}
	if v := os.Getenv("MIGRATIONS_DIR"); v != "" {
		cfg.Dir = v
	}
	if v := os.Getenv("LOCK_TIMEOUT_SEC"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.LockTimeoutSec = i
		}
	}
	if v := os.Getenv("MIGRATIONS_TABLE"); v != "" {
		cfg.MigrationsTable = v
	}
	if v := os.Getenv("PRODUCT_VERSION"); v != "" {
		cfg.ProductVersion = v
	}
	return cfg
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ValidateOffline checks everything but the connection settings, for
// commands that never open the database.
func (c *Config) ValidateOffline() error {
	if err := validator.New().StructExcept(c, "DSN", "AdminDSN"); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) LockTimeout() time.Duration {
	if c.LockTimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.LockTimeoutSec) * time.Second
}

// RetryPolicy layers the configured retry fields over defaults.
func (c *Config) RetryPolicy(defaults retry.Policy) retry.Policy {
	p := defaults
	r := c.Retry.Policy
	if r.MaxAttempts > 0 {
		p.MaxAttempts = r.MaxAttempts
	}
	if r.InitialDelay > 0 {
		p.InitialDelay = r.InitialDelay
	}
	if r.MaxDelay > 0 {
		p.MaxDelay = r.MaxDelay
	}
	if r.Multiplier > 0 {
		p.Multiplier = r.Multiplier
	}
	return p
}

// Separator returns the configured batch separator, or def.
func (c *Config) Separator(def string) string {
	if c.BatchSeparator != nil {
		return *c.BatchSeparator
	}
	return def
}
