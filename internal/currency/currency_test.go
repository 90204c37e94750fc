package currency

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRates_RoundTrip(t *testing.T) {
	t.Parallel()

	r := DefaultRates()

	usd, err := r.ToUSD(decimal.NewFromInt(166), "INR")
	require.NoError(t, err)
	assert.True(t, usd.Equal(decimal.NewFromInt(2)), "166 INR should be 2 USD, got %s", usd)

	inr, err := r.FromUSD(decimal.RequireFromString("9.50"), "inr")
	require.NoError(t, err)
	assert.True(t, inr.Equal(decimal.RequireFromString("788.5")), "got %s", inr)
}

func TestRates_USDIsIdentity(t *testing.T) {
	t.Parallel()

	r := Rates{}
	got, err := r.FromUSD(decimal.RequireFromString("3.21"), "USD")
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString("3.21")))
	assert.True(t, r.Has("usd"))
}

func TestRates_Unknown(t *testing.T) {
	t.Parallel()

	_, err := DefaultRates().ToUSD(decimal.NewFromInt(1), "XYZ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownCurrency))
	assert.False(t, DefaultRates().Has("XYZ"))
}

func TestRound(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "1.24", Round(decimal.RequireFromString("1.2351"), "EUR").String())
	assert.Equal(t, "1416", Round(decimal.RequireFromString("1415.5"), "JPY").String())
}
