// Package commission computes referral commissions. It has no storage dependencies.
package commission

import (
	"context"

	"github.com/shopspring/decimal"
)

// DefaultRate is the program-wide fallback percentage
var DefaultRate = decimal.NewFromInt(10)

var (
	minRate = decimal.Zero
	maxRate = decimal.NewFromInt(100)
	hundred = decimal.NewFromInt(100)
)

// Rates are the inputs to rate resolution
type Rates struct {
	// Product is the product or plan override. Zero or negative means none.
	Product decimal.Decimal
	// Affiliate is the affiliate's own rate when set
	Affiliate decimal.NullDecimal
	// Default is the global fallback. Zero value uses DefaultRate.
	Default decimal.NullDecimal
}

// Result is a computed commission
type Result struct {
	Rate   decimal.Decimal
	Amount decimal.Decimal
}

// EffectiveRate picks product rate if positive, else affiliate rate, else the global default,
// clamped into [0,100].
func EffectiveRate(r Rates) decimal.Decimal {
	var rate decimal.Decimal
	switch {
	case r.Product.IsPositive():
		rate = r.Product
	case r.Affiliate.Valid:
		rate = r.Affiliate.Decimal
	case r.Default.Valid:
		rate = r.Default.Decimal
	default:
		rate = DefaultRate
	}
	return Clamp(rate)
}

// Clamp bounds a percentage to [0,100]
func Clamp(rate decimal.Decimal) decimal.Decimal {
	if rate.LessThan(minRate) {
		return minRate
	}
	if rate.GreaterThan(maxRate) {
		return maxRate
	}
	return rate
}

// Amount returns orderAmount * rate / 100 rounded half-up to cents. The rate is clamped first.
func Amount(orderAmount, rate decimal.Decimal) decimal.Decimal {
	return orderAmount.Mul(Clamp(rate)).Div(hundred).Round(2)
}

// Calculate resolves the rate and applies it to orderAmount
func Calculate(orderAmount decimal.Decimal, r Rates) Result {
	rate := EffectiveRate(r)
	return Result{
		Rate:   rate,
		Amount: Amount(orderAmount, rate),
	}
}

// StaticRates resolves product rates from a fixed table keyed by product or plan id
type StaticRates map[string]decimal.Decimal

// ProductRate returns the configured rate for productID, or zero when none is set
func (s StaticRates) ProductRate(_ context.Context, productID string) (decimal.Decimal, error) {
	if rate, ok := s[productID]; ok {
		return rate, nil
	}
	return decimal.Zero, nil
}
