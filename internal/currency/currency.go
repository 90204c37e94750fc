package currency

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

const USD = "USD"

var ErrUnknownCurrency = errors.New("currency: no exchange rate")

// Rates maps an ISO currency code to the number of units one US dollar buys.
// USD is implicitly 1.
type Rates map[string]decimal.Decimal

// DefaultRates is the static table the pricing engine ships with.
func DefaultRates() Rates {
	return Rates{
		"USD": decimal.NewFromInt(1),
		"INR": decimal.NewFromInt(83),
		"EUR": decimal.RequireFromString("0.93"),
		"GBP": decimal.RequireFromString("0.79"),
		"CAD": decimal.RequireFromString("1.35"),
		"AUD": decimal.RequireFromString("1.50"),
		"JPY": decimal.NewFromInt(149),
		"BRL": decimal.RequireFromString("5.5"),
	}
}

func (r Rates) rate(code string) (decimal.Decimal, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == USD || code == "" {
		return decimal.NewFromInt(1), nil
	}
	rate, ok := r[code]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w for %q", ErrUnknownCurrency, code)
	}
	return rate, nil
}

func (r Rates) Has(code string) bool {
	_, err := r.rate(code)
	return err == nil
}

// ToUSD converts amount expressed in code into US dollars.
func (r Rates) ToUSD(amount decimal.Decimal, code string) (decimal.Decimal, error) {
	rate, err := r.rate(code)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Div(rate), nil
}

// FromUSD converts a US dollar amount into code.
func (r Rates) FromUSD(amountUSD decimal.Decimal, code string) (decimal.Decimal, error) {
	rate, err := r.rate(code)
	if err != nil {
		return decimal.Zero, err
	}
	return amountUSD.Mul(rate), nil
}

// Codes returns the configured currency codes, sorted.
func (r Rates) Codes() []string {
	out := make([]string, 0, len(r)+1)
	seenUSD := false
	for code := range r {
		if code == USD {
			seenUSD = true
		}
		out = append(out, code)
	}
	if !seenUSD {
		out = append(out, USD)
	}
	sort.Strings(out)
	return out
}

// Round rounds a money amount for display in code. Yen has no minor unit.
func Round(amount decimal.Decimal, code string) decimal.Decimal {
	if strings.EqualFold(code, "JPY") {
		return amount.Round(0)
	}
	return amount.Round(2)
}
