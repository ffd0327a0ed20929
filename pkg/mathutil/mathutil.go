// Package mathutil provides common mathematical utility functions.
package mathutil

import (
	"math"

	"github.com/iwvelando/autocall-forecast/pkg/constants"
)

// WithinTolerance checks if two values are within a specified tolerance
func WithinTolerance(val1, val2, tolerance float64) bool {
	return math.Abs(val1-val2) <= tolerance
}

// RatioEqual compares two ratios using constants.RatioTolerance.
func RatioEqual(a, b float64) bool {
	return WithinTolerance(a, b, constants.RatioTolerance)
}

// MonthlyCoupon returns the coupon fraction earned over the given number of
// months for an annualised coupon rate.
func MonthlyCoupon(months int, annualCoupon float64) float64 {
	return float64(months) * annualCoupon / constants.MonthsPerYear
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
