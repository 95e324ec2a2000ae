// Package money provides fixed-point currency amounts in integer minor
// units. All ledger arithmetic happens on Cents; decimal strings only
// appear at the API and database boundaries.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Cents is a currency amount in minor units (hundredths).
type Cents int64

// ErrTooPrecise indicates an amount with more than two fraction digits.
var ErrTooPrecise = errors.New("money: amount has sub-cent precision")

var hundred = decimal.NewFromInt(100)

// Parse converts a decimal string like "123.45" into Cents.
func Parse(s string) (Cents, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return FromDecimal(d)
}

// FromDecimal converts a decimal amount into Cents, rejecting sub-cent
// precision rather than rounding it away.
func FromDecimal(d decimal.Decimal) (Cents, error) {
	scaled := d.Mul(hundred)
	if !scaled.IsInteger() {
		return 0, ErrTooPrecise
	}
	return Cents(scaled.IntPart()), nil
}

// MustParse is Parse for constants in tests and seed data.
func MustParse(s string) Cents {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Decimal returns the amount as a two-place decimal.
func (c Cents) Decimal() decimal.Decimal {
	return decimal.New(int64(c), -2)
}

// String renders the amount with exactly two fraction digits.
func (c Cents) String() string {
	return c.Decimal().StringFixed(2)
}

// Abs returns the absolute value.
func (c Cents) Abs() Cents {
	if c < 0 {
		return -c
	}
	return c
}

// WithinTolerance reports whether two amounts differ by at most one cent.
// Only allocation previews use it; anything that reaches the journal
// engine must balance in exact cents.
func WithinTolerance(a, b Cents) bool {
	return (a - b).Abs() <= 1
}
