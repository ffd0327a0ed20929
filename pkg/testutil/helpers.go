// Package testutil provides common utility functions for testing.
package testutil

import (
	"testing"
	"time"

	"github.com/iwvelando/autocall-forecast/pkg/datetime"
	"github.com/iwvelando/autocall-forecast/pkg/pricetable"
)

// DailyTable builds a table with one row per calendar day in [from, to]
// where price returns the close of asset j on day d (d counts from 0).
func DailyTable(tb testing.TB, assets []string, from, to string, price func(d, j int) float64) *pricetable.Table {
	tb.Helper()
	start, end := datetime.MustParseDate(from), datetime.MustParseDate(to)
	var dates []time.Time
	var prices [][]float64
	for d, day := 0, start; !day.After(end); d, day = d+1, day.AddDate(0, 0, 1) {
		row := make([]float64, len(assets))
		for j := range assets {
			row[j] = price(d, j)
		}
		dates = append(dates, day)
		prices = append(prices, row)
	}
	table, err := pricetable.New(assets, dates, prices)
	if err != nil {
		tb.Fatalf("pricetable.New() error = %v", err)
	}
	return table
}

// Constant returns a price function that always yields v.
func Constant(v float64) func(d, j int) float64 {
	return func(int, int) float64 { return v }
}
