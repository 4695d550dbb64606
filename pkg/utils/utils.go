package utils

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// DaysInStage returns the number of whole days between entering a stage and now
func DaysInStage(enteredAt time.Time, now time.Time) int {
	if enteredAt.IsZero() || now.Before(enteredAt) {
		return 0
	}
	return int(now.Sub(enteredAt).Hours() / 24)
}

// IsSLABreached reports whether an item has stayed in a stage longer than the
// threshold in days. A non-positive threshold disables the check.
func IsSLABreached(days int, thresholdDays int) bool {
	return thresholdDays > 0 && days > thresholdDays
}

// RoundCurrency rounds to 2 decimal places
func RoundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// PercentageOf returns part / whole * 100, or zero when whole is zero
func PercentageOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}

// AmountFromPercentage converts a percentage of whole into a currency amount
func AmountFromPercentage(pct, whole decimal.Decimal) decimal.Decimal {
	return RoundCurrency(whole.Mul(pct).Div(hundred))
}

// Clamp bounds d to [lo, hi]
func Clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}

// DecimalFromString converts string to decimal.Decimal
func DecimalFromString(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}
