// Package format renders amounts and ratios for display.
package format

import (
	"strings"

	"github.com/iwvelando/autocall-forecast/pkg/constants"
	"github.com/shopspring/decimal"
)

// Currency returns a currency string with a dollar sign and thousands separators (e.g., "-$1,234.56").
func Currency(amount decimal.Decimal) string {
	formatted := formatPositiveCurrency(amount.Abs())
	if amount.IsNegative() && formatted != "0.00" {
		return "-$" + formatted
	}
	return "$" + formatted
}

// NumericCurrency returns a currency string without a currency symbol but with separators (e.g., "-1,234.56").
func NumericCurrency(amount decimal.Decimal) string {
	formatted := formatPositiveCurrency(amount.Abs())
	if amount.IsNegative() && formatted != "0.00" {
		return "-" + formatted
	}
	return formatted
}

// Percent renders a ratio as a percentage with two decimals (0.025 -> "2.50%").
func Percent(ratio float64) string {
	return decimal.NewFromFloat(ratio).Mul(decimal.NewFromFloat(constants.PercentageMultiplier)).StringFixed(2) + "%"
}

// Redemption is the amount repaid on notional for a payoff expressed as a
// fraction of notional, rounded to cents.
func Redemption(notional, payoff float64) decimal.Decimal {
	return decimal.NewFromFloat(notional).Mul(decimal.NewFromInt(1).Add(decimal.NewFromFloat(payoff))).Round(2)
}

func formatPositiveCurrency(value decimal.Decimal) string {
	formatted := value.StringFixed(2)
	parts := strings.SplitN(formatted, ".", 2)
	intPart := parts[0]
	decPart := "00"
	if len(parts) == 2 {
		decPart = parts[1]
	}

	if len(intPart) > 3 {
		var builder strings.Builder
		for i, digit := range intPart {
			if i > 0 && (len(intPart)-i)%3 == 0 {
				builder.WriteByte(',')
			}
			builder.WriteRune(digit)
		}
		intPart = builder.String()
	}

	return intPart + "." + decPart
}
