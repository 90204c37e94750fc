package pricing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/benithors/dotpricecli/internal/currency"
	"github.com/shopspring/decimal"
)

// DefaultLocation is the rule applied to unknown locations.
const DefaultLocation = "default"

// LocationRule is the flat markup applied for one customer location.
// Markup is expressed in Currency.
type LocationRule struct {
	Markup   decimal.Decimal `json:"markup"`
	Currency string          `json:"currency"`
	Symbol   string          `json:"symbol"`
}

type Rules map[string]LocationRule

func DefaultRules() Rules {
	rule := func(markup, code, symbol string) LocationRule {
		return LocationRule{Markup: decimal.RequireFromString(markup), Currency: code, Symbol: symbol}
	}
	return Rules{
		"US":            rule("2.00", "USD", "$"),
		"India":         rule("100", "INR", "₹"),
		"UK":            rule("1.50", "GBP", "£"),
		"EU":            rule("1.50", "EUR", "€"),
		"Canada":        rule("2.50", "CAD", "C$"),
		"Australia":     rule("2.00", "AUD", "A$"),
		"Germany":       rule("1.50", "EUR", "€"),
		"France":        rule("1.50", "EUR", "€"),
		"Japan":         rule("200", "JPY", "¥"),
		"Brazil":        rule("8.00", "BRL", "R$"),
		DefaultLocation: rule("1.00", "USD", "$"),
	}
}

// Lookup resolves location to a rule key, falling back to the default rule.
// Keys match case-insensitively.
func (r Rules) Lookup(location string) (string, LocationRule) {
	location = strings.TrimSpace(location)
	if rule, ok := r[location]; ok {
		return location, rule
	}
	for k, rule := range r {
		if strings.EqualFold(k, location) {
			return k, rule
		}
	}
	return DefaultLocation, r[DefaultLocation]
}

// Locations lists the configured keys, sorted.
func (r Rules) Locations() []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Validate requires a default rule and an exchange rate for every rule
// currency.
func (r Rules) Validate(rates currency.Rates) error {
	if _, ok := r[DefaultLocation]; !ok {
		return fmt.Errorf("%w: location rules missing %q", ErrConfiguration, DefaultLocation)
	}
	for _, k := range r.Locations() {
		rule := r[k]
		if rule.Markup.IsNegative() {
			return fmt.Errorf("%w: location %q has negative markup", ErrConfiguration, k)
		}
		if !rates.Has(rule.Currency) {
			return fmt.Errorf("%w: location %q uses currency %q with no exchange rate", ErrConfiguration, k, rule.Currency)
		}
	}
	return nil
}

var countryLocations = map[string]string{
	"US": "US",
	"IN": "India",
	"GB": "UK",
	"CA": "Canada",
	"AU": "Australia",
	"DE": "Germany",
	"FR": "France",
	"JP": "Japan",
	"BR": "Brazil",
}

// LocationForCountry maps an ISO 3166-1 alpha-2 code to a location key.
func LocationForCountry(code string) string {
	if loc, ok := countryLocations[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return loc
	}
	return DefaultLocation
}
