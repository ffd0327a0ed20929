// Package pricetable defines the date-indexed, asset-keyed table of closing
// prices consumed by the ratio builder and produced by the simulator and the
// historical price providers.
package pricetable

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/iwvelando/autocall-forecast/pkg/datetime"
)

var (
	// ErrMissingDate is returned when a requested date is absent from a table.
	ErrMissingDate = errors.New("missing date")

	// ErrMissingAsset is returned when a requested asset is absent from a table.
	ErrMissingAsset = errors.New("missing asset")

	// ErrInvalidTable is returned when table contents violate its invariants.
	ErrInvalidTable = errors.New("invalid price table")
)

// Provider supplies price tables covering [start, end] inclusive for every
// requested asset. Gaps are resolved by the provider before returning.
type Provider interface {
	Fetch(ctx context.Context, start, end time.Time, assets []string) (*Table, error)
}

// Table is an immutable rectangular price table: every asset has a positive
// price on every date. Dates are calendar dates in UTC, strictly increasing.
type Table struct {
	dates  []time.Time
	assets []string
	prices [][]float64 // prices[row][col]
	rows   map[string]int
	cols   map[string]int
}

// New validates and builds a table. prices is indexed [date][asset]. The
// slices are copied.
func New(assets []string, dates []time.Time, prices [][]float64) (*Table, error) {
	if len(assets) == 0 {
		return nil, fmt.Errorf("%w: no assets", ErrInvalidTable)
	}
	if len(dates) != len(prices) {
		return nil, fmt.Errorf("%w: %d dates but %d price rows", ErrInvalidTable, len(dates), len(prices))
	}

	t := &Table{
		dates:  make([]time.Time, len(dates)),
		assets: append([]string(nil), assets...),
		prices: make([][]float64, len(prices)),
		rows:   make(map[string]int, len(dates)),
		cols:   make(map[string]int, len(assets)),
	}
	for j, a := range assets {
		if _, dup := t.cols[a]; dup {
			return nil, fmt.Errorf("%w: duplicate asset %s", ErrInvalidTable, a)
		}
		t.cols[a] = j
	}
	for i, d := range dates {
		d = datetime.Truncate(d)
		if i > 0 && !d.After(t.dates[i-1]) {
			return nil, fmt.Errorf("%w: dates not strictly increasing at %s", ErrInvalidTable, datetime.Format(d))
		}
		if len(prices[i]) != len(assets) {
			return nil, fmt.Errorf("%w: row %s has %d prices for %d assets", ErrInvalidTable, datetime.Format(d), len(prices[i]), len(assets))
		}
		for j, p := range prices[i] {
			if !(p > 0) || math.IsInf(p, 0) {
				return nil, fmt.Errorf("%w: non-positive price %v for %s on %s", ErrInvalidTable, p, assets[j], datetime.Format(d))
			}
		}
		t.dates[i] = d
		t.prices[i] = append([]float64(nil), prices[i]...)
		t.rows[datetime.Format(d)] = i
	}
	return t, nil
}

// Len returns the number of dates in the table.
func (t *Table) Len() int { return len(t.dates) }

// Assets returns a copy of the asset identifiers in column order.
func (t *Table) Assets() []string { return append([]string(nil), t.assets...) }

// Dates returns a copy of the table dates.
func (t *Table) Dates() []time.Time { return append([]time.Time(nil), t.dates...) }

// First returns the earliest date. It panics on an empty table.
func (t *Table) First() time.Time { return t.dates[0] }

// Last returns the latest date. It panics on an empty table.
func (t *Table) Last() time.Time { return t.dates[len(t.dates)-1] }

// HasDate reports whether the table contains the calendar date of d.
func (t *Table) HasDate(d time.Time) bool {
	_, ok := t.rows[datetime.Format(d)]
	return ok
}

// HasAsset reports whether the table carries a column for asset.
func (t *Table) HasAsset(asset string) bool {
	_, ok := t.cols[asset]
	return ok
}

// Row returns the row index of date d.
func (t *Table) Row(d time.Time) (int, error) {
	i, ok := t.rows[datetime.Format(d)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingDate, datetime.Format(d))
	}
	return i, nil
}

// Column returns the column index of asset.
func (t *Table) Column(asset string) (int, error) {
	j, ok := t.cols[asset]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingAsset, asset)
	}
	return j, nil
}

// At returns the price at a row and column index.
func (t *Table) At(row, col int) float64 { return t.prices[row][col] }

// DateAt returns the date of a row index.
func (t *Table) DateAt(row int) time.Time { return t.dates[row] }

// Price returns the close of asset on date d.
func (t *Table) Price(d time.Time, asset string) (float64, error) {
	j, err := t.Column(asset)
	if err != nil {
		return 0, err
	}
	i, err := t.Row(d)
	if err != nil {
		return 0, err
	}
	return t.prices[i][j], nil
}

// Series returns a copy of the full price history of asset.
func (t *Table) Series(asset string) ([]float64, error) {
	j, err := t.Column(asset)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(t.dates))
	for i := range t.prices {
		out[i] = t.prices[i][j]
	}
	return out, nil
}

// Window returns the row index range [lo, hi) covering dates within
// [start, end] inclusive.
func (t *Table) Window(start, end time.Time) (int, int) {
	start, end = datetime.Truncate(start), datetime.Truncate(end)
	lo := sort.Search(len(t.dates), func(i int) bool { return !t.dates[i].Before(start) })
	hi := sort.Search(len(t.dates), func(i int) bool { return t.dates[i].After(end) })
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// Slice returns a new table restricted to the given assets and to dates in
// [start, end] inclusive.
func (t *Table) Slice(start, end time.Time, assets []string) (*Table, error) {
	cols := make([]int, len(assets))
	for k, a := range assets {
		j, err := t.Column(a)
		if err != nil {
			return nil, err
		}
		cols[k] = j
	}
	lo, hi := t.Window(start, end)
	if lo == hi {
		return nil, fmt.Errorf("%w: no dates between %s and %s", ErrMissingDate, datetime.Format(start), datetime.Format(end))
	}
	prices := make([][]float64, 0, hi-lo)
	for i := lo; i < hi; i++ {
		row := make([]float64, len(cols))
		for k, j := range cols {
			row[k] = t.prices[i][j]
		}
		prices = append(prices, row)
	}
	return New(assets, t.dates[lo:hi], prices)
}
