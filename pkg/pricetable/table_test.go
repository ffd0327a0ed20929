package pricetable

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/iwvelando/autocall-forecast/pkg/datetime"
)

func sampleTable(t *testing.T) *Table {
	t.Helper()
	dates := []time.Time{
		datetime.MustParseDate("2018-01-02"),
		datetime.MustParseDate("2018-01-03"),
		datetime.MustParseDate("2018-01-04"),
		datetime.MustParseDate("2018-01-05"),
	}
	prices := [][]float64{
		{100, 3000},
		{101, 2990},
		{99, 3010},
		{98, 3050},
	}
	table, err := New([]string{"KOSPI200", "EUROSTOXX50"}, dates, prices)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return table
}

func TestNewValidation(t *testing.T) {
	d1 := datetime.MustParseDate("2018-01-02")
	d2 := datetime.MustParseDate("2018-01-03")

	tests := []struct {
		name   string
		assets []string
		dates  []time.Time
		prices [][]float64
	}{
		{"No assets", nil, []time.Time{d1}, [][]float64{{}}},
		{"Row count mismatch", []string{"A"}, []time.Time{d1, d2}, [][]float64{{1}}},
		{"Ragged row", []string{"A", "B"}, []time.Time{d1}, [][]float64{{1}}},
		{"Duplicate asset", []string{"A", "A"}, []time.Time{d1}, [][]float64{{1, 1}}},
		{"Unsorted dates", []string{"A"}, []time.Time{d2, d1}, [][]float64{{1}, {1}}},
		{"Zero price", []string{"A"}, []time.Time{d1}, [][]float64{{0}}},
		{"NaN price", []string{"A"}, []time.Time{d1}, [][]float64{{math.NaN()}}},
		{"Infinite price", []string{"A"}, []time.Time{d1}, [][]float64{{math.Inf(1)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.assets, tt.dates, tt.prices)
			if !errors.Is(err, ErrInvalidTable) {
				t.Errorf("New() error = %v, expected ErrInvalidTable", err)
			}
		})
	}
}

func TestPrice(t *testing.T) {
	table := sampleTable(t)

	tests := []struct {
		name     string
		date     string
		asset    string
		expected float64
		wantErr  error
	}{
		{"Present", "2018-01-04", "KOSPI200", 99, nil},
		{"Second column", "2018-01-02", "EUROSTOXX50", 3000, nil},
		{"Missing date", "2018-01-06", "KOSPI200", 0, ErrMissingDate},
		{"Missing asset", "2018-01-02", "HSCEI", 0, ErrMissingAsset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, err := table.Price(datetime.MustParseDate(tt.date), tt.asset)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Price() error = %v, expected %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Price() error = %v", err)
			}
			if price != tt.expected {
				t.Errorf("Price() = %v, expected %v", price, tt.expected)
			}
		})
	}
}

func TestDateLookupIgnoresClock(t *testing.T) {
	table := sampleTable(t)
	withClock := time.Date(2018, 1, 3, 15, 30, 0, 0, time.FixedZone("KST", 9*3600))
	if !table.HasDate(withClock) {
		t.Errorf("HasDate() = false for a time on a table date")
	}
}

func TestSeriesIsCopy(t *testing.T) {
	table := sampleTable(t)
	series, err := table.Series("KOSPI200")
	if err != nil {
		t.Fatalf("Series() error = %v", err)
	}
	series[0] = -1
	if table.At(0, 0) != 100 {
		t.Errorf("Series() exposed internal storage")
	}
}

func TestSlice(t *testing.T) {
	table := sampleTable(t)
	sub, err := table.Slice(datetime.MustParseDate("2018-01-03"), datetime.MustParseDate("2018-01-04"), []string{"EUROSTOXX50"})
	if err != nil {
		t.Fatalf("Slice() error = %v", err)
	}
	if sub.Len() != 2 {
		t.Fatalf("Slice() len = %d, expected 2", sub.Len())
	}
	if got := sub.At(1, 0); got != 3010 {
		t.Errorf("Slice() At(1,0) = %v, expected 3010", got)
	}
	if sub.HasAsset("KOSPI200") {
		t.Errorf("Slice() kept an unrequested asset")
	}

	_, err = table.Slice(datetime.MustParseDate("2019-01-01"), datetime.MustParseDate("2019-02-01"), []string{"KOSPI200"})
	if !errors.Is(err, ErrMissingDate) {
		t.Errorf("Slice() error = %v, expected ErrMissingDate", err)
	}
}

func TestBuilderForwardFill(t *testing.T) {
	b := NewBuilder([]string{"A", "B"})
	d1 := datetime.MustParseDate("2018-01-02")
	d2 := datetime.MustParseDate("2018-01-03")
	d3 := datetime.MustParseDate("2018-01-04")
	b.Set(d2, "A", 11)
	b.Set(d1, "A", 10)
	b.Set(d1, "B", 20)
	b.Set(d3, "B", 22)
	b.Set(d3, "A", 12)
	b.Set(d3, "IGNORED", 1)

	table, err := b.Build(true)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if got, _ := table.Price(d2, "B"); got != 20 {
		t.Errorf("forward filled B on %s = %v, expected 20", datetime.Format(d2), got)
	}
	if table.HasAsset("IGNORED") {
		t.Errorf("Build() included an unknown asset")
	}

	if _, err := b.Build(false); !errors.Is(err, ErrMissingAsset) {
		t.Errorf("Build(false) error = %v, expected ErrMissingAsset", err)
	}
}

func TestBuilderLeadingGap(t *testing.T) {
	b := NewBuilder([]string{"A", "B"})
	b.Set(datetime.MustParseDate("2018-01-02"), "A", 10)
	b.Set(datetime.MustParseDate("2018-01-03"), "A", 10)
	b.Set(datetime.MustParseDate("2018-01-03"), "B", 10)

	if _, err := b.Build(true); !errors.Is(err, ErrMissingAsset) {
		t.Errorf("Build() error = %v, expected ErrMissingAsset", err)
	}
}

func TestMemoryProvider(t *testing.T) {
	provider := MemoryProvider{Table: sampleTable(t)}
	table, err := provider.Fetch(context.Background(), datetime.MustParseDate("2018-01-01"), datetime.MustParseDate("2018-01-31"), []string{"KOSPI200"})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if table.Len() != 4 {
		t.Errorf("Fetch() len = %d, expected 4", table.Len())
	}

	if _, err := (MemoryProvider{}).Fetch(context.Background(), time.Time{}, time.Time{}, nil); !errors.Is(err, ErrInvalidTable) {
		t.Errorf("Fetch() on empty provider error = %v, expected ErrInvalidTable", err)
	}
}
