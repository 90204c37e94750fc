package pricing

import (
	"fmt"

	"github.com/benithors/dotpricecli/internal/currency"
	"github.com/shopspring/decimal"
)

// Policy bounds the customer price relative to the wholesale price.
type Policy struct {
	MinMargin        decimal.Decimal // USD
	MaxMarkupPercent decimal.Decimal
}

func DefaultPolicy() Policy {
	return Policy{
		MinMargin:        decimal.RequireFromString("1.50"),
		MaxMarkupPercent: decimal.NewFromInt(50),
	}
}

func (p Policy) Validate() error {
	if p.MinMargin.IsNegative() {
		return fmt.Errorf("%w: negative minimum margin", ErrConfiguration)
	}
	if !p.MaxMarkupPercent.IsPositive() {
		return fmt.Errorf("%w: max markup percent must be positive", ErrConfiguration)
	}
	return nil
}

// Price is the outcome of marking up one wholesale price.
type Price struct {
	CustomerUSD    decimal.Decimal
	Customer       decimal.Decimal // in the rule's currency
	Margin         decimal.Decimal // USD
	MarginPercent  decimal.Decimal
	FloorApplied   bool
	CeilingApplied bool
}

var hundred = decimal.NewFromInt(100)

// ApplyMarkup adds the location markup to a USD wholesale price, raises it
// to the margin floor and then caps it at the markup ceiling. When both
// bind, the ceiling wins and the margin may fall below MinMargin.
func ApplyMarkup(wholesale decimal.Decimal, rule LocationRule, rates currency.Rates, p Policy) (Price, error) {
	markupUSD, err := rates.ToUSD(rule.Markup, rule.Currency)
	if err != nil {
		return Price{}, err
	}

	var out Price
	customer := wholesale.Add(markupUSD).Round(2)

	floor := wholesale.Add(p.MinMargin)
	if customer.LessThan(floor) {
		customer = floor.RoundCeil(2)
		out.FloorApplied = true
	}

	ceiling := wholesale.Mul(decimal.NewFromInt(1).Add(p.MaxMarkupPercent.Div(hundred)))
	if customer.GreaterThan(ceiling) {
		customer = ceiling.RoundFloor(2)
		out.CeilingApplied = true
	}

	local, err := rates.FromUSD(customer, rule.Currency)
	if err != nil {
		return Price{}, err
	}

	out.CustomerUSD = customer
	out.Customer = currency.Round(local, rule.Currency)
	out.Margin = customer.Sub(wholesale)
	if wholesale.IsPositive() {
		out.MarginPercent = out.Margin.Div(wholesale).Mul(hundred).Round(2)
	}
	return out, nil
}
