// Package money holds the rounding rules shared by every ledger calculation.
//
// Amounts are rounded to two decimal places, half away from zero, exactly once
// per computed value. Intermediate products are kept at full precision.
package money

import "github.com/shopspring/decimal"

// Scale is the number of decimal places kept for currency amounts.
const Scale int32 = 2

var (
	Zero    = decimal.Zero
	Hundred = decimal.NewFromInt(100)
)

// Round rounds to currency precision, half away from zero.
func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(Scale)
}

// RoundPercentage rounds a rate to the two places a percentage column holds.
func RoundPercentage(pct decimal.Decimal) decimal.Decimal {
	return pct.Round(Scale)
}

// Percentage returns amount*pct/100 rounded to currency precision.
func Percentage(amount, pct decimal.Decimal) decimal.Decimal {
	return Round(amount.Mul(pct).Div(Hundred))
}

// ValidPercentage reports whether pct lies in [0, 100].
func ValidPercentage(pct decimal.Decimal) bool {
	return !pct.IsNegative() && pct.LessThanOrEqual(Hundred)
}

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Parse reads a decimal string and rounds it to currency precision.
func Parse(value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, err
	}
	return Round(d), nil
}
