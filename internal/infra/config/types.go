package config

import (
	"fmt"
	"strings"

	"github.com/coachpo/chronicle/internal/domain/region"
)

// Environment identifies the runtime environment a binary operates in.
type Environment string

const (
	// EnvDev marks the development environment.
	EnvDev Environment = "dev"
	// EnvStaging marks the staging environment.
	EnvStaging Environment = "staging"
	// EnvProd marks the production environment.
	EnvProd Environment = "prod"
)

func (e Environment) validate() error {
	switch e {
	case EnvDev, EnvStaging, EnvProd:
		return nil
	default:
		return fmt.Errorf("environment must be one of dev, staging, prod")
	}
}

// parseMarket parses CODE.COUNTRY, e.g. XNYS.US.
func parseMarket(text string) (region.Market, error) {
	code, country, ok := strings.Cut(strings.TrimSpace(text), ".")
	code = strings.ToUpper(strings.TrimSpace(code))
	country = strings.ToUpper(strings.TrimSpace(country))
	if !ok || code == "" || country == "" {
		return region.Market{}, fmt.Errorf("parse market %q: expected CODE.COUNTRY", text)
	}
	return region.Market{Code: region.MarketCode(code), Country: region.CountryCode(country)}, nil
}
