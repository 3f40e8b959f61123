// Package money converts between integer cents and decimal amounts. Every
// conversion rounds half to even so repeated rounding never drifts.
package money

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// FromCents turns a cent amount into a currency-unit decimal.
func FromCents(cents int) decimal.Decimal {
	return decimal.NewFromInt(int64(cents)).Div(hundred)
}

// ToCents rounds a currency-unit decimal to whole cents, half to even.
func ToCents(amount decimal.Decimal) int {
	return int(amount.Mul(hundred).RoundBank(0).IntPart())
}

// RoundCents rounds a fractional cent amount to whole cents, half to even.
func RoundCents(cents decimal.Decimal) int {
	return int(cents.RoundBank(0).IntPart())
}

// ApplyRate returns cents x rate rounded to whole cents.
func ApplyRate(cents int, rate decimal.Decimal) int {
	return RoundCents(decimal.NewFromInt(int64(cents)).Mul(rate))
}

// Percent returns cents x pct / 100 rounded to whole cents.
func Percent(cents int, pct decimal.Decimal) int {
	return RoundCents(decimal.NewFromInt(int64(cents)).Mul(pct).Div(hundred))
}

// Format renders cents as a plain two-decimal string, e.g. 1999 -> "19.99".
func Format(cents int) string {
	return FromCents(cents).StringFixed(2)
}
