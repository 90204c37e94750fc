package pricing

import (
	"time"

	"github.com/benithors/dotpricecli/internal/registrar"
	"github.com/shopspring/decimal"
)

// NoRegistrar is the WholesaleRegistrar of an unavailable quote.
const NoRegistrar = "none"

// Quote is the customer-facing price of one domain for one location.
// Prices are zero when the domain is unavailable.
type Quote struct {
	Domain   string `json:"domain"`
	Location string `json:"location"`

	Available bool `json:"available"`
	Premium   bool `json:"premium"`

	WholesalePrice     decimal.Decimal `json:"wholesale_price"`
	WholesaleRegistrar string          `json:"wholesale_registrar"`

	CustomerPrice    decimal.Decimal `json:"customer_price"`
	CustomerPriceUSD decimal.Decimal `json:"customer_price_usd"`
	Currency         string          `json:"currency"`
	Symbol           string          `json:"symbol"`

	MarginAmount  decimal.Decimal `json:"margin_amount"`
	MarginPercent decimal.Decimal `json:"margin_percent"`

	FloorApplied   bool `json:"floor_applied,omitempty"`
	CeilingApplied bool `json:"ceiling_applied,omitempty"`

	RegistrarsChecked int               `json:"registrars_checked"`
	Registrars        []registrar.Quote `json:"registrars,omitempty"`

	CheckedAt time.Time `json:"checked_at"`
	LatencyMs int64     `json:"latency_ms"`
	FromCache bool      `json:"from_cache,omitempty"`
}

// Display renders the customer price with the location's symbol.
func (q Quote) Display() string {
	if !q.Available {
		return "-"
	}
	if q.Currency == "JPY" {
		return q.Symbol + q.CustomerPrice.StringFixed(0)
	}
	return q.Symbol + q.CustomerPrice.StringFixed(2)
}

func unavailableQuote(domain, location string, rule LocationRule) Quote {
	return Quote{
		Domain:             domain,
		Location:           location,
		WholesaleRegistrar: NoRegistrar,
		Currency:           rule.Currency,
		Symbol:             rule.Symbol,
	}
}
