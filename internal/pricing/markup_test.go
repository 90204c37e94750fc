package pricing

import (
	"testing"

	"github.com/benithors/dotpricecli/internal/currency"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyMarkup(t *testing.T) {
	t.Parallel()

	rules := DefaultRules()
	rates := currency.DefaultRates()
	policy := DefaultPolicy()

	tests := []struct {
		name        string
		wholesale   string
		location    string
		customerUSD string
		customer    string
		margin      string
		floor       bool
		ceiling     bool
	}{
		{name: "us flat markup", wholesale: "8", location: "US", customerUSD: "10", customer: "10", margin: "2"},
		{name: "india raised to floor", wholesale: "8", location: "India", customerUSD: "9.5", customer: "788.5", margin: "1.5", floor: true},
		{name: "ceiling caps cheap domain", wholesale: "1", location: "US", customerUSD: "1.5", customer: "1.5", margin: "0.5", ceiling: true},
		{name: "ceiling beats floor", wholesale: "2", location: "Brazil", customerUSD: "3", customer: "16.5", margin: "1", floor: true, ceiling: true},
		{name: "canada capped", wholesale: "3", location: "Canada", customerUSD: "4.5", customer: "6.08", margin: "1.5", ceiling: true},
		{name: "japan whole yen", wholesale: "10", location: "Japan", customerUSD: "11.5", customer: "1714", margin: "1.5", floor: true},
		{name: "default rule", wholesale: "12.99", location: DefaultLocation, customerUSD: "14.49", customer: "14.49", margin: "1.5", floor: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, rule := rules.Lookup(tt.location)
			got, err := ApplyMarkup(dec(tt.wholesale), rule, rates, policy)
			require.NoError(t, err)
			assert.Equal(t, tt.customerUSD, got.CustomerUSD.String())
			assert.Equal(t, tt.customer, got.Customer.String())
			assert.Equal(t, tt.margin, got.Margin.String())
			assert.Equal(t, tt.floor, got.FloorApplied)
			assert.Equal(t, tt.ceiling, got.CeilingApplied)
		})
	}
}

func TestApplyMarkup_CeilingRoundsDown(t *testing.T) {
	t.Parallel()

	// 8.99 * 1.5 = 13.485; rounding half-up would breach the cap.
	rule := LocationRule{Markup: dec("10"), Currency: "USD", Symbol: "$"}
	got, err := ApplyMarkup(dec("8.99"), rule, currency.DefaultRates(), DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, "13.48", got.CustomerUSD.String())
	assert.True(t, got.CeilingApplied)
}

func TestApplyMarkup_UnknownCurrency(t *testing.T) {
	t.Parallel()

	rule := LocationRule{Markup: dec("1"), Currency: "XYZ"}
	_, err := ApplyMarkup(dec("8"), rule, currency.DefaultRates(), DefaultPolicy())
	assert.ErrorIs(t, err, currency.ErrUnknownCurrency)
}

func TestPolicyValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, DefaultPolicy().Validate())
	assert.ErrorIs(t, Policy{MinMargin: dec("-1"), MaxMarkupPercent: dec("50")}.Validate(), ErrConfiguration)
	assert.ErrorIs(t, Policy{MinMargin: dec("1"), MaxMarkupPercent: dec("0")}.Validate(), ErrConfiguration)
}
