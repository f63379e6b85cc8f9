// Package fees computes the per-trade brokerage fee applied when orders are
// generated and settled.
package fees

import "github.com/shopspring/decimal"

// Schedule is a flat-rate fee with an optional floor.
type Schedule struct {
	Rate    float64 // fraction of notional, e.g. 0.001 for 0.1%
	Minimum float64 // floor per trade, 0 disables
}

// For returns the fee for trading shares at the given price per share.
func (s Schedule) For(pricePerShare float64, shares int64) float64 {
	notional := decimal.NewFromFloat(pricePerShare).Mul(decimal.NewFromInt(shares))
	fee := notional.Mul(decimal.NewFromFloat(s.Rate))
	minimum := decimal.NewFromFloat(s.Minimum)
	if fee.LessThan(minimum) {
		fee = minimum
	}
	return fee.InexactFloat64()
}
