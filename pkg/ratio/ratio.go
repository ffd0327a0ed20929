// Package ratio derives the per-observation, per-asset performance matrix of
// an autocallable product: observation price divided by the asset's price on
// the start date.
package ratio

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/iwvelando/autocall-forecast/pkg/datetime"
	"github.com/iwvelando/autocall-forecast/pkg/pricetable"
	"gonum.org/v1/gonum/floats"
)

// ErrObservationOutOfRange is returned for observation numbers outside the matrix.
var ErrObservationOutOfRange = errors.New("observation out of range")

// Matrix holds ratios by observation row and asset column. Values are never
// mutated after construction; transformations return new matrices.
type Matrix struct {
	Start  time.Time
	Dates  []time.Time
	Assets []string
	Values [][]float64
}

// Build looks up each underlying on the start date and on every schedule
// date and returns observation/start ratios in schedule order.
func Build(table *pricetable.Table, start time.Time, schedule []time.Time, underlyings []string) (*Matrix, error) {
	base, err := StartPrices(table, start, underlyings)
	if err != nil {
		return nil, err
	}

	values := make([][]float64, len(schedule))
	for i, d := range schedule {
		row := make([]float64, len(underlyings))
		for j, a := range underlyings {
			p, err := table.Price(d, a)
			if err != nil {
				return nil, fmt.Errorf("observation %d (%s): %w", i+1, datetime.Format(d), err)
			}
			row[j] = p / base[j]
		}
		values[i] = row
	}

	return &Matrix{
		Start:  datetime.Truncate(start),
		Dates:  append([]time.Time(nil), schedule...),
		Assets: append([]string(nil), underlyings...),
		Values: values,
	}, nil
}

// StartPrices returns the initial fixing of each underlying.
func StartPrices(table *pricetable.Table, start time.Time, underlyings []string) ([]float64, error) {
	base := make([]float64, len(underlyings))
	for j, a := range underlyings {
		p, err := table.Price(start, a)
		if err != nil {
			return nil, fmt.Errorf("start date %s: %w", datetime.Format(start), err)
		}
		base[j] = p
	}
	return base, nil
}

// StartRatios returns each underlying's start-date price divided by itself,
// which is exactly 1.0.
func StartRatios(table *pricetable.Table, start time.Time, underlyings []string) ([]float64, error) {
	base, err := StartPrices(table, start, underlyings)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(base))
	for j, p := range base {
		out[j] = p / p
	}
	return out, nil
}

// WorstContinuous returns the minimum ratio across every underlying and every
// table date in [start, end] inclusive.
func WorstContinuous(table *pricetable.Table, start, end time.Time, underlyings []string) (float64, error) {
	base, err := StartPrices(table, start, underlyings)
	if err != nil {
		return 0, err
	}
	if !table.HasDate(end) {
		return 0, fmt.Errorf("final observation %s: %w", datetime.Format(end), pricetable.ErrMissingDate)
	}

	cols := make([]int, len(underlyings))
	for j, a := range underlyings {
		if cols[j], err = table.Column(a); err != nil {
			return 0, err
		}
	}

	worst := math.Inf(1)
	lo, hi := table.Window(start, end)
	for i := lo; i < hi; i++ {
		for j, c := range cols {
			if r := table.At(i, c) / base[j]; r < worst {
				worst = r
			}
		}
	}
	return worst, nil
}

// Len returns the number of observations.
func (m *Matrix) Len() int { return len(m.Values) }

// Worst returns the worst-of ratio at observation index i. A NaN ratio
// makes the whole row NaN.
func (m *Matrix) Worst(i int) float64 {
	if floats.HasNaN(m.Values[i]) {
		return math.NaN()
	}
	return floats.Min(m.Values[i])
}

// WorstAsset returns the column of the worst performer at observation index
// i; ties resolve to the first asset in underlying order.
func (m *Matrix) WorstAsset(i int) int {
	return floats.MinIdx(m.Values[i])
}

// LockWorst returns a new matrix in which, from the given 1-based
// observation onward, every asset's ratio is replaced by the ratio of the
// asset that was worst at that observation. The returned int is the locked
// asset's column.
func (m *Matrix) LockWorst(observation int) (*Matrix, int, error) {
	if observation < 1 || observation > m.Len() {
		return nil, 0, fmt.Errorf("%w: lock observation %d of %d", ErrObservationOutOfRange, observation, m.Len())
	}
	k := observation - 1
	worst := m.WorstAsset(k)

	values := make([][]float64, m.Len())
	for i, row := range m.Values {
		out := append([]float64(nil), row...)
		if i >= k {
			for j := range out {
				out[j] = row[worst]
			}
		}
		values[i] = out
	}

	return &Matrix{
		Start:  m.Start,
		Dates:  append([]time.Time(nil), m.Dates...),
		Assets: append([]string(nil), m.Assets...),
		Values: values,
	}, worst, nil
}
