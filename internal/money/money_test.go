package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoundsHalfAwayFromZero(t *testing.T) {
	m := New(decimal.RequireFromString("120.005"), "TRY")
	assert.Equal(t, "120.01 TRY", m.String())

	neg := New(decimal.RequireFromString("-120.005"), "TRY")
	assert.Equal(t, "-120.01 TRY", neg.String())
}

func TestNewDefaultsCurrency(t *testing.T) {
	m := New(decimal.NewFromInt(100), "")
	assert.Equal(t, DefaultCurrency, m.Currency())
}

func TestFromString(t *testing.T) {
	m, err := FromString("60.00", "TRY")
	require.NoError(t, err)
	assert.True(t, m.Amount().Equal(decimal.NewFromInt(60)))

	_, err = FromString("not-a-number", "TRY")
	assert.Error(t, err)
}

func TestMulComputesLineTotal(t *testing.T) {
	unit := New(decimal.NewFromInt(60), "TRY")
	line := unit.Mul(decimal.NewFromInt(2))
	assert.Equal(t, "120.00 TRY", line.String())
}

func TestAddCurrencyMismatchPanics(t *testing.T) {
	a := New(decimal.NewFromInt(1), "TRY")
	b := New(decimal.NewFromInt(1), "USD")
	assert.Panics(t, func() { a.Add(b) })
}
