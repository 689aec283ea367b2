package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/coachpo/chronicle/internal/domain/region"
	"github.com/coachpo/chronicle/internal/domain/regionmap"
	"github.com/coachpo/chronicle/internal/domain/riskstore"
	"github.com/coachpo/chronicle/internal/infra/telemetry"
	"github.com/coachpo/chronicle/internal/risk"
)

// RegionParameters overrides the risk parameters of a region. The region is the union
// of its countries, markets (CODE.COUNTRY) and securities (SYMBOL.COUNTRY[.VENUE]).
type RegionParameters struct {
	Name       string          `yaml:"name"`
	Countries  []string        `yaml:"countries"`
	Markets    []string        `yaml:"markets"`
	Securities []string        `yaml:"securities"`
	Parameters risk.Parameters `yaml:"parameters"`
}

// Region builds the region the override applies to.
func (c RegionParameters) Region() (region.Region, error) {
	r := region.New(c.Name)
	for _, country := range c.Countries {
		code := strings.ToUpper(strings.TrimSpace(country))
		if code == "" {
			return region.Region{}, fmt.Errorf("region %q: empty country", c.Name)
		}
		r = r.WithCountry(region.CountryCode(code))
	}
	for _, text := range c.Markets {
		market, err := parseMarket(text)
		if err != nil {
			return region.Region{}, fmt.Errorf("region %q: %w", c.Name, err)
		}
		r = r.WithMarket(market)
	}
	for _, text := range c.Securities {
		sec, err := region.ParseSecurity(text)
		if err != nil {
			return region.Region{}, fmt.Errorf("region %q: %w", c.Name, err)
		}
		r = r.WithSecurity(sec)
	}
	if r.IsEmpty() {
		return region.Region{}, fmt.Errorf("region %q: no countries, markets or securities", c.Name)
	}
	return r, nil
}

// ParametersConfig holds the global risk parameters and their regional overrides.
type ParametersConfig struct {
	Global  risk.Parameters    `yaml:"global"`
	Regions []RegionParameters `yaml:"regions"`
}

// Build returns the region map resolving the configured parameters. Later overrides of
// the same region replace earlier ones.
func (c ParametersConfig) Build() (*regionmap.RegionMap[risk.Parameters], error) {
	m := risk.NewParameterMap(c.Global)
	for _, override := range c.Regions {
		r, err := override.Region()
		if err != nil {
			return nil, err
		}
		m.Set(r, override.Parameters)
	}
	return m, nil
}

func validateParameters(p risk.Parameters) error {
	if p.BuyingPower < 0 || p.NetLoss < 0 {
		return fmt.Errorf("buying_power and net_loss must be >= 0")
	}
	if p.LossFromTop < 0 || p.LossFromTop > 100 {
		return fmt.Errorf("loss_from_top must be a percentage between 0 and 100")
	}
	if p.TransitionTime < 0 {
		return fmt.Errorf("transition_time must be >= 0")
	}
	return nil
}

// RiskConfig configures the risk service.
type RiskConfig struct {
	Accounts        []string         `yaml:"accounts"`
	PersistInterval time.Duration    `yaml:"persist_interval"`
	Parameters      ParametersConfig `yaml:"parameters"`
}

// AccountIDs returns the configured accounts.
func (c RiskConfig) AccountIDs() []riskstore.Account {
	out := make([]riskstore.Account, 0, len(c.Accounts))
	for _, a := range c.Accounts {
		out = append(out, riskstore.Account(a))
	}
	return out
}

// RiskServerConfig is the configuration of the risk server.
type RiskServerConfig struct {
	Environment    Environment          `yaml:"environment"`
	ServiceLocator ServiceLocatorConfig `yaml:"service_locator"`
	Database       DatabaseConfig       `yaml:"database"`
	Telemetry      telemetry.Config     `yaml:"telemetry"`
	Logging        LoggingConfig        `yaml:"logging"`
	Risk           RiskConfig           `yaml:"risk"`
}

// LoadRiskServer reads and validates the risk server configuration at path.
func LoadRiskServer(path string) (RiskServerConfig, error) {
	cfg := RiskServerConfig{Telemetry: defaultTelemetry()}
	if err := decodeFile(path, &cfg); err != nil {
		return RiskServerConfig{}, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return RiskServerConfig{}, err
	}
	return cfg, nil
}

func (c *RiskServerConfig) applyDefaults() {
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
	if c.Risk.PersistInterval <= 0 {
		c.Risk.PersistInterval = risk.DefaultPersistInterval
	}
	accounts := make([]string, 0, len(c.Risk.Accounts))
	seen := make(map[string]struct{}, len(c.Risk.Accounts))
	for _, a := range c.Risk.Accounts {
		a = strings.TrimSpace(a)
		if _, dup := seen[a]; dup || a == "" {
			continue
		}
		seen[a] = struct{}{}
		accounts = append(accounts, a)
	}
	c.Risk.Accounts = accounts
}

// Validate performs semantic validation on the configuration.
func (c RiskServerConfig) Validate() error {
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
	if len(c.Risk.Accounts) == 0 {
		return fmt.Errorf("risk: at least one account required")
	}
	if err := validateParameters(c.Risk.Parameters.Global); err != nil {
		return fmt.Errorf("risk: global: %w", err)
	}
	for _, override := range c.Risk.Parameters.Regions {
		if _, err := override.Region(); err != nil {
			return fmt.Errorf("risk: %w", err)
		}
		if err := validateParameters(override.Parameters); err != nil {
			return fmt.Errorf("risk: region %q: %w", override.Name, err)
		}
	}
	return nil
}
