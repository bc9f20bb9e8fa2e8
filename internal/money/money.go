// Package money provides decimal-exact monetary arithmetic for the rule
// engine. Every monetary output flows through Round or Share; native
// floating-point multiplication is never used for amounts, so chained
// computations cannot accumulate binary representation error.
package money

import "github.com/shopspring/decimal"

// Places is the regulatory money precision: two decimal places.
const Places = 2

// Round rounds to Places decimal places, half away from zero. For the
// non-negative amounts the engine rounds this matches plain half-up; the
// difference shows only on negative ties, where -10.005 rounds to -10.01
// rather than -10.00, keeping gains and losses symmetric.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// RoundTo rounds to the given number of decimal places, half away from zero.
func RoundTo(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Round(places)
}

// Share returns the rounded portion of amount given by ratio.
func Share(amount, ratio decimal.Decimal) decimal.Decimal {
	return Round(amount.Mul(ratio))
}

// Remainder returns the rounded amount minus share. Computing the second
// part of a split by subtraction guarantees the two parts reconstruct the
// rounded whole exactly, with no vanishing cent.
func Remainder(amount, share decimal.Decimal) decimal.Decimal {
	return Round(amount).Sub(share)
}

// Format renders d with exactly Places decimal places. Canonical views use
// this form so that amounts hash identically regardless of how they were
// computed.
func Format(d decimal.Decimal) string {
	return d.StringFixed(Places)
}

// Parse parses an amount from its decimal string form.
func Parse(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}
