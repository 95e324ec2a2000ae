package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	c, err := Parse("123.45")
	require.NoError(t, err)
	require.Equal(t, Cents(12345), c)

	c, err = Parse("-0.01")
	require.NoError(t, err)
	require.Equal(t, Cents(-1), c)

	c, err = Parse("500")
	require.NoError(t, err)
	require.Equal(t, Cents(50000), c)

	_, err = Parse("1.005")
	require.ErrorIs(t, err, ErrTooPrecise)

	_, err = Parse("abc")
	require.Error(t, err)
}

func TestFromDecimal(t *testing.T) {
	c, err := FromDecimal(decimal.RequireFromString("33.34"))
	require.NoError(t, err)
	require.Equal(t, Cents(3334), c)

	_, err = FromDecimal(decimal.RequireFromString("0.001"))
	require.ErrorIs(t, err, ErrTooPrecise)
}

func TestString(t *testing.T) {
	require.Equal(t, "123.45", Cents(12345).String())
	require.Equal(t, "0.03", Cents(3).String())
	require.Equal(t, "-5.00", Cents(-500).String())
}

func TestWithinTolerance(t *testing.T) {
	require.True(t, WithinTolerance(100, 100))
	require.True(t, WithinTolerance(100, 101))
	require.True(t, WithinTolerance(101, 100))
	require.False(t, WithinTolerance(100, 102))
}
