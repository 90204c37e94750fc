package config

import (
	"fmt"
	"strings"

	"github.com/benithors/dotpricecli/internal/currency"
	"github.com/benithors/dotpricecli/internal/pricing"
	"github.com/shopspring/decimal"
)

// ConfigurationError lists every problem found in a configuration.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

func (e *ConfigurationError) Unwrap() error { return pricing.ErrConfiguration }

var registrarKinds = map[string]bool{
	"porkbun":   true,
	"godaddy":   true,
	"namecheap": true,
	"namecom":   true,
	"namesilo":  true,
	"dynadot":   true,
	"generic":   true,
}

func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	seen := map[string]bool{}
	for _, r := range c.Registrars {
		name := strings.ToLower(strings.TrimSpace(r.Name))
		if name == "" {
			add("registrar with empty name")
			continue
		}
		if seen[name] {
			add("duplicate registrar %q", r.Name)
		}
		seen[name] = true
		if !registrarKinds[strings.ToLower(r.Kind)] {
			add("registrar %q has unknown kind %q", r.Name, r.Kind)
		}
		if r.AvgPrice != "" {
			if d, err := decimal.NewFromString(r.AvgPrice); err != nil || d.IsNegative() {
				add("registrar %q has bad avg_price %q", r.Name, r.AvgPrice)
			}
		}
		if strings.EqualFold(r.Kind, "generic") && r.BaseURL == "" {
			add("registrar %q needs base_url", r.Name)
		}
	}

	rates, err := c.ExchangeRates()
	if err != nil {
		add("%v", err)
	}
	rules, err := c.Rules()
	if err != nil {
		add("%v", err)
	} else if rates != nil {
		if err := rules.Validate(rates); err != nil {
			add("%v", strings.TrimPrefix(err.Error(), pricing.ErrConfiguration.Error()+": "))
		}
	}
	if policy, err := c.PricingPolicy(); err != nil {
		add("%v", err)
	} else if err := policy.Validate(); err != nil {
		add("%v", strings.TrimPrefix(err.Error(), pricing.ErrConfiguration.Error()+": "))
	}

	if c.Deadline <= 0 {
		add("deadline must be positive")
	}
	switch strings.ToLower(c.Cache.Backend) {
	case "memory", "redis", "none", "":
	default:
		add("unknown cache backend %q", c.Cache.Backend)
	}
	switch strings.ToLower(c.Queue.Backend) {
	case "redis", "kafka":
	default:
		add("unknown queue backend %q", c.Queue.Backend)
	}
	if strings.EqualFold(c.Queue.Backend, "kafka") && len(c.Queue.KafkaBrokers) == 0 {
		add("kafka queue needs kafka_brokers")
	}
	switch strings.ToLower(c.Store.Backend) {
	case "redis":
	case "postgres":
		if c.Store.DSN == "" {
			add("postgres store needs dsn")
		}
	default:
		add("unknown store backend %q", c.Store.Backend)
	}

	if len(problems) > 0 {
		return &ConfigurationError{Problems: problems}
	}
	return nil
}

// ExchangeRates parses the rates section.
func (c *Config) ExchangeRates() (currency.Rates, error) {
	out := currency.Rates{}
	for code, raw := range c.Rates {
		d, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil || !d.IsPositive() {
			return nil, fmt.Errorf("bad exchange rate %q for %s", raw, code)
		}
		out[strings.ToUpper(code)] = d
	}
	return out, nil
}

// Rules parses the locations section. Viper lowercases map keys, so
// well-known locations get their canonical spelling back.
func (c *Config) Rules() (pricing.Rules, error) {
	canonical := map[string]string{}
	for k := range pricing.DefaultRules() {
		canonical[strings.ToLower(k)] = k
	}
	out := pricing.Rules{}
	for key, loc := range c.Locations {
		name := key
		if k, ok := canonical[strings.ToLower(key)]; ok {
			name = k
		}
		markup, err := decimal.NewFromString(strings.TrimSpace(loc.Markup))
		if err != nil {
			return nil, fmt.Errorf("bad markup %q for location %s", loc.Markup, key)
		}
		out[name] = pricing.LocationRule{
			Markup:   markup,
			Currency: strings.ToUpper(strings.TrimSpace(loc.Currency)),
			Symbol:   loc.Symbol,
		}
	}
	return out, nil
}

func (c *Config) PricingPolicy() (pricing.Policy, error) {
	minMargin, err := decimal.NewFromString(strings.TrimSpace(c.Policy.MinMargin))
	if err != nil {
		return pricing.Policy{}, fmt.Errorf("bad min_margin %q", c.Policy.MinMargin)
	}
	maxPct, err := decimal.NewFromString(strings.TrimSpace(c.Policy.MaxMarkupPercent))
	if err != nil {
		return pricing.Policy{}, fmt.Errorf("bad max_markup_percent %q", c.Policy.MaxMarkupPercent)
	}
	return pricing.Policy{MinMargin: minMargin, MaxMarkupPercent: maxPct}, nil
}
