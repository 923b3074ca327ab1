package commission

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestEffectiveRate(t *testing.T) {
	tests := []struct {
		name  string
		rates Rates
		want  string
	}{
		{"product rate wins when positive", Rates{Product: d("20"), Affiliate: decimal.NewNullDecimal(d("15"))}, "20"},
		{"zero product rate falls through", Rates{Product: d("0"), Affiliate: decimal.NewNullDecimal(d("15"))}, "15"},
		{"negative product rate falls through", Rates{Product: d("-3"), Affiliate: decimal.NewNullDecimal(d("7.5"))}, "7.5"},
		{"explicit zero affiliate rate is kept", Rates{Affiliate: decimal.NewNullDecimal(d("0"))}, "0"},
		{"configured default", Rates{Default: decimal.NewNullDecimal(d("12"))}, "12"},
		{"built-in default", Rates{}, "10"},
		{"clamped above", Rates{Product: d("150")}, "100"},
		{"clamped below", Rates{Affiliate: decimal.NewNullDecimal(d("-5"))}, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EffectiveRate(tt.rates)
			assert.True(t, got.Equal(d(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestAmount(t *testing.T) {
	tests := []struct {
		amount string
		rate   string
		want   string
	}{
		{"200.00", "12.5", "25.00"},
		{"49.00", "10", "4.90"},
		{"10.05", "50", "5.03"},
		{"0.01", "50", "0.01"},
		{"99.99", "150", "99.99"},
		{"99.99", "-5", "0"},
		{"0", "10", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.amount+"@"+tt.rate, func(t *testing.T) {
			got := Amount(d(tt.amount), d(tt.rate))
			assert.True(t, got.Equal(d(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestCalculate(t *testing.T) {
	res := Calculate(d("200.00"), Rates{Affiliate: decimal.NewNullDecimal(d("12.5"))})

	assert.True(t, res.Rate.Equal(d("12.5")))
	assert.Equal(t, "25.00", res.Amount.StringFixed(2))
}

func TestStaticRates(t *testing.T) {
	rates := StaticRates{"plan-pro": d("20")}

	got, err := rates.ProductRate(context.Background(), "plan-pro")
	assert.NoError(t, err)
	assert.True(t, got.Equal(d("20")))

	got, err = rates.ProductRate(context.Background(), "plan-basic")
	assert.NoError(t, err)
	assert.True(t, got.IsZero())
}
