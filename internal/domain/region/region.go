// Package region models the country/market/security scopes used as configuration
// override keys and the enclosure partial order between them.
package region

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// CountryCode is an ISO 3166 alpha-2 country code (e.g. US, CA).
type CountryCode string

// MarketCode identifies a trading venue by its MIC (e.g. XNYS, XTSE).
type MarketCode string

// Market pairs a venue with the country it operates in.
type Market struct {
	Code    MarketCode
	Country CountryCode
}

// Security identifies a listed instrument. Identity is (Symbol, Country); Venue is the
// primary listing market.
type Security struct {
	Symbol  string
	Venue   MarketCode
	Country CountryCode
}

// SecurityKey is the identity of a Security.
type SecurityKey struct {
	Symbol  string
	Country CountryCode
}

// Key returns the identity of the security.
func (s Security) Key() SecurityKey {
	return SecurityKey{Symbol: s.Symbol, Country: s.Country}
}

// IsZero reports whether the security is unset.
func (s Security) IsZero() bool {
	return s.Symbol == "" && s.Country == ""
}

// String renders the security as SYMBOL.COUNTRY.
func (s Security) String() string {
	if s.Country == "" {
		return s.Symbol
	}
	return s.Symbol + "." + string(s.Country)
}

// Compare orders securities by (symbol, country).
func (s Security) Compare(o Security) int {
	if c := cmp.Compare(s.Symbol, o.Symbol); c != 0 {
		return c
	}
	return cmp.Compare(s.Country, o.Country)
}

// ParseSecurity parses SYMBOL.COUNTRY or SYMBOL.COUNTRY.VENUE.
func ParseSecurity(text string) (Security, error) {
	parts := strings.Split(strings.TrimSpace(text), ".")
	if len(parts) < 2 || len(parts) > 3 {
		return Security{}, fmt.Errorf("parse security %q: expected SYMBOL.COUNTRY[.VENUE]", text)
	}
	sec := Security{
		Symbol:  strings.ToUpper(strings.TrimSpace(parts[0])),
		Country: CountryCode(strings.ToUpper(strings.TrimSpace(parts[1]))),
	}
	if len(parts) == 3 {
		sec.Venue = MarketCode(strings.ToUpper(strings.TrimSpace(parts[2])))
	}
	if sec.Symbol == "" || sec.Country == "" {
		return Security{}, fmt.Errorf("parse security %q: symbol and country required", text)
	}
	return sec, nil
}

// Region is an immutable set of countries, markets and securities. The zero value is
// the empty region, enclosed by every region.
type Region struct {
	name       string
	global     bool
	countries  map[CountryCode]struct{}
	markets    map[MarketCode]CountryCode
	securities map[SecurityKey]Security
}

// Global returns the region enclosing every other region.
func Global(name string) Region {
	return Region{name: name, global: true}
}

// New returns an empty named region; use the With methods to populate it.
func New(name string) Region {
	return Region{name: name}
}

// FromCountry returns a region containing a single country.
func FromCountry(country CountryCode) Region {
	return New(string(country)).WithCountry(country)
}

// FromMarket returns a region containing a single market.
func FromMarket(market Market) Region {
	return New(string(market.Code)).WithMarket(market)
}

// FromSecurity returns a region containing a single security.
func FromSecurity(security Security) Region {
	return New(security.String()).WithSecurity(security)
}

// Name returns the display name of the region.
func (r Region) Name() string { return r.name }

// IsGlobal reports whether r is the global region.
func (r Region) IsGlobal() bool { return r.global }

// IsEmpty reports whether r contains nothing.
func (r Region) IsEmpty() bool {
	return !r.global && len(r.countries) == 0 && len(r.markets) == 0 && len(r.securities) == 0
}

// WithName returns a copy of r carrying the provided name.
func (r Region) WithName(name string) Region {
	out := r.clone()
	out.name = name
	return out
}

// WithCountry returns a copy of r that also contains country.
func (r Region) WithCountry(country CountryCode) Region {
	out := r.clone()
	if out.countries == nil {
		out.countries = make(map[CountryCode]struct{}, 1)
	}
	out.countries[country] = struct{}{}
	return out
}

// WithMarket returns a copy of r that also contains market.
func (r Region) WithMarket(market Market) Region {
	out := r.clone()
	if out.markets == nil {
		out.markets = make(map[MarketCode]CountryCode, 1)
	}
	out.markets[market.Code] = market.Country
	return out
}

// WithSecurity returns a copy of r that also contains security.
func (r Region) WithSecurity(security Security) Region {
	out := r.clone()
	if out.securities == nil {
		out.securities = make(map[SecurityKey]Security, 1)
	}
	out.securities[security.Key()] = security
	return out
}

// Union returns a region containing everything in r and o.
func (r Region) Union(o Region) Region {
	if r.global || o.global {
		return Global(r.name)
	}
	out := r.clone()
	for c := range o.countries {
		out = out.WithCountry(c)
	}
	for code, country := range o.markets {
		out = out.WithMarket(Market{Code: code, Country: country})
	}
	for _, s := range o.securities {
		out = out.WithSecurity(s)
	}
	return out
}

// Countries returns the countries of r in ascending order.
func (r Region) Countries() []CountryCode {
	return slices.Sorted(maps.Keys(r.countries))
}

// Markets returns the markets of r ordered by code.
func (r Region) Markets() []Market {
	out := make([]Market, 0, len(r.markets))
	for code, country := range r.markets {
		out = append(out, Market{Code: code, Country: country})
	}
	slices.SortFunc(out, func(a, b Market) int { return cmp.Compare(a.Code, b.Code) })
	return out
}

// Securities returns the securities of r ordered by (symbol, country).
func (r Region) Securities() []Security {
	out := slices.Collect(maps.Values(r.securities))
	slices.SortFunc(out, Security.Compare)
	return out
}

// ContainsCountry reports whether country falls within r.
func (r Region) ContainsCountry(country CountryCode) bool {
	if r.global {
		return true
	}
	_, ok := r.countries[country]
	return ok
}

// ContainsMarket reports whether market falls within r, either directly or through its
// country.
func (r Region) ContainsMarket(market Market) bool {
	if r.global {
		return true
	}
	if _, ok := r.markets[market.Code]; ok {
		return true
	}
	_, ok := r.countries[market.Country]
	return ok
}

// ContainsSecurity reports whether security falls within r, directly, through its venue
// or through its country.
func (r Region) ContainsSecurity(security Security) bool {
	if r.global {
		return true
	}
	if _, ok := r.securities[security.Key()]; ok {
		return true
	}
	if security.Venue != "" {
		if _, ok := r.markets[security.Venue]; ok {
			return true
		}
	}
	_, ok := r.countries[security.Country]
	return ok
}

// Encloses reports whether o <= r, i.e. everything in o is also in r. Every region
// encloses itself and the global region encloses every region.
func (r Region) Encloses(o Region) bool {
	if r.global {
		return true
	}
	if o.global {
		return false
	}
	for c := range o.countries {
		if !r.ContainsCountry(c) {
			return false
		}
	}
	for code, country := range o.markets {
		if !r.ContainsMarket(Market{Code: code, Country: country}) {
			return false
		}
	}
	for _, s := range o.securities {
		if !r.ContainsSecurity(s) {
			return false
		}
	}
	return true
}

// Equal reports whether r and o contain exactly the same elements. Names are ignored.
func (r Region) Equal(o Region) bool {
	if r.global || o.global {
		return r.global == o.global
	}
	if len(r.countries) != len(o.countries) || len(r.markets) != len(o.markets) ||
		len(r.securities) != len(o.securities) {
		return false
	}
	for c := range r.countries {
		if _, ok := o.countries[c]; !ok {
			return false
		}
	}
	for code, country := range r.markets {
		if other, ok := o.markets[code]; !ok || other != country {
			return false
		}
	}
	for key := range r.securities {
		if _, ok := o.securities[key]; !ok {
			return false
		}
	}
	return true
}

// String renders the region for logs.
func (r Region) String() string {
	if r.global {
		if r.name != "" {
			return r.name
		}
		return "Global"
	}
	var parts []string
	for _, c := range r.Countries() {
		parts = append(parts, string(c))
	}
	for _, m := range r.Markets() {
		parts = append(parts, string(m.Code))
	}
	for _, s := range r.Securities() {
		parts = append(parts, s.String())
	}
	body := "{" + strings.Join(parts, ",") + "}"
	if r.name != "" {
		return r.name + body
	}
	return body
}

func (r Region) clone() Region {
	return Region{
		name:       r.name,
		global:     r.global,
		countries:  maps.Clone(r.countries),
		markets:    maps.Clone(r.markets),
		securities: maps.Clone(r.securities),
	}
}
