package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/coachpo/chronicle/internal/domain/marketdata"
	"github.com/coachpo/chronicle/internal/domain/region"
	"github.com/coachpo/chronicle/internal/infra/telemetry"
	"github.com/coachpo/chronicle/internal/replay"
)

// FeedConfig configures the market data feed the replay publishes to. An empty URL
// selects a client that discards every record.
type FeedConfig struct {
	URL         string        `yaml:"url"`
	MaxRate     float64       `yaml:"max_rate"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// ReplayConfig is the configuration of the replay tool.
type ReplayConfig struct {
	Environment    Environment          `yaml:"environment"`
	ServiceLocator ServiceLocatorConfig `yaml:"service_locator"`
	Database       DatabaseConfig       `yaml:"database"`
	Telemetry      telemetry.Config     `yaml:"telemetry"`
	Logging        LoggingConfig        `yaml:"logging"`
	Feed           FeedConfig           `yaml:"feed"`
	Sampling       time.Duration        `yaml:"sampling"`
	StartTime      time.Time            `yaml:"start_time"`
	ClientCount    int                  `yaml:"client_count"`
	Securities     string               `yaml:"securities"`
	Kinds          []marketdata.Kind    `yaml:"kinds"`
	ChunkSize      int                  `yaml:"chunk_size"`
	LoadAttempts   int                  `yaml:"load_attempts"`
}

// LoadReplay reads and validates the replay configuration at path. The securities path
// is resolved against the directory of the configuration file.
func LoadReplay(path string) (ReplayConfig, error) {
	cfg := ReplayConfig{Telemetry: defaultTelemetry()}
	if err := decodeFile(path, &cfg); err != nil {
		return ReplayConfig{}, err
	}
	cfg.Securities = resolvePath(path, cfg.Securities)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return ReplayConfig{}, err
	}
	return cfg, nil
}

func (c *ReplayConfig) applyDefaults() {
	c.Environment = Environment(strings.ToLower(strings.TrimSpace(string(c.Environment))))
	if c.Environment == "" {
		c.Environment = EnvDev
	}
	if strings.TrimSpace(c.Telemetry.Environment) == "" {
		c.Telemetry.Environment = string(c.Environment)
	}
	c.ServiceLocator.normalise()
	c.Database.applyDefaults()
	c.Logging.applyDefaults()
	c.Feed.URL = strings.TrimSpace(c.Feed.URL)
	if c.Feed.DialTimeout <= 0 {
		c.Feed.DialTimeout = 5 * time.Second
	}
	if c.ClientCount <= 0 {
		c.ClientCount = 1
	}
	if len(c.Kinds) == 0 {
		c.Kinds = append([]marketdata.Kind(nil), replay.DefaultKinds...)
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = replay.DefaultChunkSize
	}
	if c.LoadAttempts <= 0 {
		c.LoadAttempts = 3
	}
}

// Validate performs semantic validation on the configuration.
func (c ReplayConfig) Validate() error {
	if err := c.Environment.validate(); err != nil {
		return err
	}
	if err := c.ServiceLocator.validate(); err != nil {
		return fmt.Errorf("service_locator: %w", err)
	}
	if err := c.Database.validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := validateTelemetry(c.Telemetry); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	if err := c.Logging.validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if c.Feed.MaxRate < 0 {
		return fmt.Errorf("feed: max_rate must be >= 0")
	}
	if c.Sampling < 0 {
		return fmt.Errorf("sampling must be >= 0")
	}
	if c.StartTime.IsZero() {
		return fmt.Errorf("start_time required")
	}
	if c.Securities == "" {
		return fmt.Errorf("securities required")
	}
	for _, kind := range c.Kinds {
		switch kind {
		case marketdata.KindBboQuote, marketdata.KindBookQuote, marketdata.KindTimeAndSale:
		default:
			return fmt.Errorf("kinds: %s cannot be replayed per security", kind)
		}
	}
	return nil
}

// LoadSecurities reads a securities list: one SYMBOL.COUNTRY[.VENUE] per line. Blank
// lines and lines starting with # are skipped, as are repeated securities.
func LoadSecurities(path string) ([]region.Security, error) {
	file, err := os.Open(path) // #nosec G304 -- path is operator controlled.
	if err != nil {
		return nil, fmt.Errorf("open securities: %w", err)
	}
	defer func() { _ = file.Close() }()

	var (
		out  []region.Security
		seen = make(map[region.SecurityKey]struct{})
	)
	scanner := bufio.NewScanner(file)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		sec, err := region.ParseSecurity(text)
		if err != nil {
			return nil, fmt.Errorf("securities line %d: %w", line, err)
		}
		if _, dup := seen[sec.Key()]; dup {
			continue
		}
		seen[sec.Key()] = struct{}{}
		out = append(out, sec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read securities: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("securities: %s lists no securities", path)
	}
	return out, nil
}

// Partition splits securities into at most n contiguous groups whose sizes differ by at
// most one.
func Partition(securities []region.Security, n int) [][]region.Security {
	if n <= 0 {
		n = 1
	}
	n = min(n, len(securities))
	out := make([][]region.Security, 0, n)
	start := 0
	for i := range n {
		size := len(securities) / n
		if i < len(securities)%n {
			size++
		}
		out = append(out, securities[start:start+size])
		start += size
	}
	return out
}
