// Package commission splits a line total between the platform and the supplier.
package commission

import "github.com/shopspring/decimal"

var (
	hundred = decimal.NewFromInt(100)
	maxRate = hundred
)

// Result is the platform/supplier split of one line total.
type Result struct {
	Rate        decimal.Decimal
	Commission  decimal.Decimal
	SupplierNet decimal.Decimal
}

// Calculate applies rate (a percentage) to lineTotal. Commission is rounded to
// two decimals and SupplierNet takes the remainder, so the two always add up
// to lineTotal. Rates outside 0..100 are clamped.
func Calculate(rate, lineTotal decimal.Decimal) Result {
	rate = ClampRate(rate)
	commission := lineTotal.Mul(rate).Div(hundred).Round(2)
	return Result{
		Rate:        rate,
		Commission:  commission,
		SupplierNet: lineTotal.Sub(commission),
	}
}

func ClampRate(rate decimal.Decimal) decimal.Decimal {
	if rate.IsNegative() {
		return decimal.Zero
	}
	if rate.GreaterThan(maxRate) {
		return maxRate
	}
	return rate
}

// RateFor resolves the rate for a supplier, falling back to platformRate for
// platform-owned lines.
func RateFor(supplierRate *decimal.Decimal, platformRate decimal.Decimal) decimal.Decimal {
	if supplierRate == nil {
		return ClampRate(platformRate)
	}
	return ClampRate(*supplierRate)
}
