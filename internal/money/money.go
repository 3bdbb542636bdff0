// Package money models amounts as an immutable (amount, currency) pair,
// rounded half-away-from-zero to two decimal places.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when a currency code is not supplied.
const DefaultCurrency = "TRY"

// Money is an immutable decimal amount tagged with a 3-letter currency
// code. Zero value is not meaningful; use New or Zero.
type Money struct {
	amount   decimal.Decimal
	currency string
}

// Zero returns 0 in the default currency.
func Zero() Money {
	return Money{amount: decimal.Zero, currency: DefaultCurrency}
}

// New builds a Money, rounding amount half-away-from-zero to 2 places.
// An empty currency defaults to DefaultCurrency.
func New(amount decimal.Decimal, currency string) Money {
	if currency == "" {
		currency = DefaultCurrency
	}
	return Money{amount: roundHalfAwayFromZero(amount, 2), currency: currency}
}

// FromString parses a decimal string, rounding as New does.
func FromString(s, currency string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return New(d, currency), nil
}

// Amount returns the underlying decimal value.
func (m Money) Amount() decimal.Decimal { return m.amount }

// Currency returns the 3-letter currency code.
func (m Money) Currency() string { return m.currency }

// String renders "amount currency", e.g. "120.00 TRY".
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(2), m.currency)
}

// Add returns m+other. Panics if currencies differ; callers are
// expected to normalize currency before combining amounts.
func (m Money) Add(other Money) Money {
	if m.currency != other.currency {
		panic(fmt.Sprintf("money: currency mismatch %s vs %s", m.currency, other.currency))
	}
	return New(m.amount.Add(other.amount), m.currency)
}

// Mul returns m * factor, rounded half-away-from-zero.
func (m Money) Mul(factor decimal.Decimal) Money {
	return New(m.amount.Mul(factor), m.currency)
}

// LessThan reports whether m < other by raw decimal comparison, in the
// same currency.
func (m Money) LessThan(other Money) bool {
	return m.amount.LessThan(other.amount)
}

// GreaterThan reports whether m > other by raw decimal comparison.
func (m Money) GreaterThan(other Money) bool {
	return m.amount.GreaterThan(other.amount)
}

// roundHalfAwayFromZero rounds d to places using away-from-zero
// tie-breaking, matching decimal(18,2) banking conventions used by the
// order total and line-item math.
func roundHalfAwayFromZero(d decimal.Decimal, places int32) decimal.Decimal {
	if d.Sign() < 0 {
		return d.Neg().Round(places).Neg()
	}
	return d.Round(places)
}
