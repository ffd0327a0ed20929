package pricetable

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/iwvelando/autocall-forecast/pkg/datetime"
)

// Builder accumulates sparse observations and produces a rectangular Table.
type Builder struct {
	assets []string
	known  map[string]struct{}
	obs    map[string]map[string]float64
	dates  map[string]time.Time
}

// NewBuilder returns a builder for the given asset columns.
func NewBuilder(assets []string) *Builder {
	b := &Builder{
		assets: append([]string(nil), assets...),
		known:  make(map[string]struct{}, len(assets)),
		obs:    make(map[string]map[string]float64),
		dates:  make(map[string]time.Time),
	}
	for _, a := range assets {
		b.known[a] = struct{}{}
	}
	return b
}

// Set records the close of asset on date d. Observations for assets outside
// the builder's columns are ignored.
func (b *Builder) Set(d time.Time, asset string, price float64) {
	if _, ok := b.known[asset]; !ok {
		return
	}
	key := datetime.Format(d)
	row, ok := b.obs[key]
	if !ok {
		row = make(map[string]float64, len(b.assets))
		b.obs[key] = row
		b.dates[key] = datetime.Truncate(d)
	}
	row[asset] = price
}

// Build produces the table. With forwardFill set, a missing close is carried
// forward from the asset's previous date; an asset with no earlier close is
// rejected with ErrMissingAsset. Without forward fill any gap is rejected.
func (b *Builder) Build(forwardFill bool) (*Table, error) {
	keys := make([]string, 0, len(b.obs))
	for k := range b.obs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	dates := make([]time.Time, len(keys))
	prices := make([][]float64, len(keys))
	last := make([]float64, len(b.assets))
	for i, k := range keys {
		dates[i] = b.dates[k]
		row := make([]float64, len(b.assets))
		for j, a := range b.assets {
			p, ok := b.obs[k][a]
			switch {
			case ok:
				last[j] = p
			case forwardFill && last[j] > 0:
				p = last[j]
			default:
				return nil, fmt.Errorf("%w: %s has no close on or before %s", ErrMissingAsset, a, k)
			}
			row[j] = p
		}
		prices[i] = row
	}
	return New(b.assets, dates, prices)
}

// MemoryProvider serves slices of an in-memory table, e.g. a simulated one.
type MemoryProvider struct {
	Table *Table
}

// Fetch implements Provider.
func (m MemoryProvider) Fetch(_ context.Context, start, end time.Time, assets []string) (*Table, error) {
	if m.Table == nil {
		return nil, fmt.Errorf("%w: provider has no table", ErrInvalidTable)
	}
	return m.Table.Slice(start, end, assets)
}
