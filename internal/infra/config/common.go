// Package config loads and validates the YAML configuration of the chronicle binaries.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coachpo/chronicle/internal/infra/persistence"
	"github.com/coachpo/chronicle/internal/infra/telemetry"
)

// DefaultPath is the configuration file read when no path is given.
const DefaultPath = "config.yml"

// ServiceLocatorConfig holds the service locator endpoint and credentials. They are
// validated but not used to log in.
type ServiceLocatorConfig struct {
	Address  string `yaml:"address"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

func (c *ServiceLocatorConfig) normalise() {
	c.Address = strings.TrimSpace(c.Address)
	c.Username = strings.TrimSpace(c.Username)
}

func (c ServiceLocatorConfig) validate() error {
	if c.Address == "" {
		return fmt.Errorf("address required")
	}
	if c.Username == "" {
		return fmt.Errorf("username required")
	}
	return nil
}

// DatabaseConfig controls SQL connectivity and migration behaviour.
type DatabaseConfig struct {
	Driver            string        `yaml:"driver"`
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"max_conns"`
	MinConns          int32         `yaml:"min_conns"`
	MaxConnLifetime   time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `yaml:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `yaml:"health_check_period"`
	RunMigrations     bool          `yaml:"run_migrations"`
}

func (c *DatabaseConfig) applyDefaults() {
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	if c.Driver == "" {
		c.Driver = "sqlite"
	}
	c.DSN = strings.TrimSpace(c.DSN)
	if c.DSN == "" && c.Driver == "sqlite" {
		c.DSN = "chronicle.db"
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 16
	}
	if c.MinConns <= 0 {
		c.MinConns = 1
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
	if c.MaxConnLifetime <= 0 {
		c.MaxConnLifetime = 30 * time.Minute
	}
	if c.MaxConnIdleTime <= 0 {
		c.MaxConnIdleTime = 5 * time.Minute
	}
	if c.HealthCheckPeriod <= 0 {
		c.HealthCheckPeriod = 30 * time.Second
	}
}

func (c DatabaseConfig) validate() error {
	if _, ok := persistence.ParseDialect(c.Driver); !ok {
		return fmt.Errorf("driver must be sqlite or postgres")
	}
	if c.DSN == "" {
		return fmt.Errorf("dsn required")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("min_conns must be <= max_conns")
	}
	if c.RunMigrations && c.Dialect() != persistence.Postgres {
		return fmt.Errorf("run_migrations requires the postgres driver")
	}
	return nil
}

// Dialect returns the SQL dialect of the configured driver.
func (c DatabaseConfig) Dialect() persistence.Dialect {
	d, _ := persistence.ParseDialect(c.Driver)
	return d
}

// Options converts the configuration into pool options.
func (c DatabaseConfig) Options() persistence.Options {
	return persistence.Options{
		Dialect:           c.Dialect(),
		DSN:               c.DSN,
		MaxConns:          c.MaxConns,
		MinConns:          c.MinConns,
		MaxConnLifetime:   c.MaxConnLifetime,
		MaxConnIdleTime:   c.MaxConnIdleTime,
		HealthCheckPeriod: c.HealthCheckPeriod,
	}
}

// LoggingConfig selects the log level and encoding.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (c *LoggingConfig) applyDefaults() {
	c.Level = strings.ToLower(strings.TrimSpace(c.Level))
	if c.Level == "" {
		c.Level = "info"
	}
	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	if c.Format == "" {
		c.Format = "json"
	}
}

func (c LoggingConfig) validate() error {
	switch c.Format {
	case "json", "console":
		return nil
	default:
		return fmt.Errorf("format must be json or console")
	}
}

// defaultTelemetry returns the telemetry defaults with the environment left for the
// configuration's own environment to fill.
func defaultTelemetry() telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.Environment = ""
	return cfg
}

func validateTelemetry(c telemetry.Config) error {
	if !c.Enabled {
		return nil
	}
	if strings.TrimSpace(c.OTLPEndpoint) == "" {
		return fmt.Errorf("otlp_endpoint required when enabled")
	}
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("service_name required when enabled")
	}
	return nil
}

// decodeFile reads path into out. Unknown keys are rejected.
func decodeFile(path string, out any) error {
	data, err := readConfigFile(path)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

func readConfigFile(path string) ([]byte, error) {
	candidate := strings.TrimSpace(path)
	if candidate == "" {
		candidate = DefaultPath
	}
	candidate = filepath.Clean(candidate)

	data, err := os.ReadFile(candidate) // #nosec G304 -- path is operator controlled.
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	return data, nil
}

// resolvePath resolves rel against the directory of the configuration file.
func resolvePath(configPath, rel string) string {
	rel = strings.TrimSpace(rel)
	if rel == "" || filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(filepath.Dir(configPath), rel)
}
