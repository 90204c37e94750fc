package pricing

import (
	"testing"

	"github.com/benithors/dotpricecli/internal/currency"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

func TestApplyMarkupProperties(t *testing.T) {
	rules := DefaultRules()
	rates := currency.DefaultRates()
	policy := DefaultPolicy()
	locations := rules.Locations()
	factor := decimal.NewFromInt(1).Add(policy.MaxMarkupPercent.Div(hundred))

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	markup := func(cents int64, idx int) Price {
		_, rule := rules.Lookup(locations[idx%len(locations)])
		p, err := ApplyMarkup(decimal.New(cents, -2), rule, rates, policy)
		if err != nil {
			t.Fatalf("ApplyMarkup: %v", err)
		}
		return p
	}

	properties.Property("customer price never exceeds the markup ceiling", prop.ForAll(
		func(cents int64, idx int) bool {
			wholesale := decimal.New(cents, -2)
			return markup(cents, idx).CustomerUSD.LessThanOrEqual(wholesale.Mul(factor))
		},
		gen.Int64Range(1, 1_000_000),
		gen.IntRange(0, 100),
	))

	properties.Property("margin reaches the floor unless the ceiling binds", prop.ForAll(
		func(cents int64, idx int) bool {
			p := markup(cents, idx)
			return p.CeilingApplied || p.Margin.GreaterThanOrEqual(policy.MinMargin)
		},
		gen.Int64Range(1, 1_000_000),
		gen.IntRange(0, 100),
	))

	properties.Property("customer price is never below wholesale", prop.ForAll(
		func(cents int64, idx int) bool {
			p := markup(cents, idx)
			return p.CustomerUSD.GreaterThanOrEqual(decimal.New(cents, -2)) && !p.Margin.IsNegative()
		},
		gen.Int64Range(1, 1_000_000),
		gen.IntRange(0, 100),
	))

	properties.Property("margin is customer minus wholesale", prop.ForAll(
		func(cents int64, idx int) bool {
			p := markup(cents, idx)
			return p.CustomerUSD.Sub(decimal.New(cents, -2)).Equal(p.Margin)
		},
		gen.Int64Range(1, 1_000_000),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}
