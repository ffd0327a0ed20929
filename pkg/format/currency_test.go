package format

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCurrency(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		currency string
		numeric  string
	}{
		{"Zero", "0", "$0.00", "0.00"},
		{"Small", "12.5", "$12.50", "12.50"},
		{"Thousands", "10250", "$10,250.00", "10,250.00"},
		{"Millions", "1234567.891", "$1,234,567.89", "1,234,567.89"},
		{"Negative", "-1234.56", "-$1,234.56", "-1,234.56"},
		{"Negative rounds to zero", "-0.001", "$0.00", "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount := decimal.RequireFromString(tt.amount)
			if got := Currency(amount); got != tt.currency {
				t.Errorf("Currency() = %s, expected %s", got, tt.currency)
			}
			if got := NumericCurrency(amount); got != tt.numeric {
				t.Errorf("NumericCurrency() = %s, expected %s", got, tt.numeric)
			}
		})
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		ratio    float64
		expected string
	}{
		{0.025, "2.50%"},
		{-0.3, "-30.00%"},
		{0, "0.00%"},
		{1, "100.00%"},
	}

	for _, tt := range tests {
		if got := Percent(tt.ratio); got != tt.expected {
			t.Errorf("Percent(%v) = %s, expected %s", tt.ratio, got, tt.expected)
		}
	}
}

func TestRedemption(t *testing.T) {
	tests := []struct {
		name     string
		notional float64
		payoff   float64
		expected string
	}{
		{"Coupon", 10000, 0.025, "10250"},
		{"Loss", 10000, -0.3, "7000"},
		{"Rounded", 3333, 0.0333, "3443.99"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Redemption(tt.notional, tt.payoff)
			if !got.Equal(decimal.RequireFromString(tt.expected)) {
				t.Errorf("Redemption() = %s, expected %s", got, tt.expected)
			}
		})
	}
}
