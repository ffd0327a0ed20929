package ratio

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/iwvelando/autocall-forecast/pkg/datetime"
	"github.com/iwvelando/autocall-forecast/pkg/pricetable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dates(ds ...string) []time.Time {
	out := make([]time.Time, len(ds))
	for i, d := range ds {
		out[i] = datetime.MustParseDate(d)
	}
	return out
}

// fixture: two assets over five dates, start on the first date.
func fixture(t *testing.T) *pricetable.Table {
	t.Helper()
	table, err := pricetable.New(
		[]string{"A", "B"},
		dates("2020-01-01", "2020-01-02", "2020-01-03", "2020-01-04", "2020-01-05"),
		[][]float64{
			{100, 50},
			{95, 55},
			{60, 52},
			{105, 40},
			{110, 60},
		},
	)
	require.NoError(t, err)
	return table
}

func TestBuild(t *testing.T) {
	table := fixture(t)
	sched := dates("2020-01-02", "2020-01-04", "2020-01-05")

	m, err := Build(table, datetime.MustParseDate("2020-01-01"), sched, []string{"A", "B"})
	require.NoError(t, err)

	require.Equal(t, 3, m.Len())
	assert.Equal(t, []string{"A", "B"}, m.Assets)
	assert.InDeltaSlice(t, []float64{0.95, 1.1}, m.Values[0], 1e-12)
	assert.InDeltaSlice(t, []float64{1.05, 0.8}, m.Values[1], 1e-12)
	assert.InDeltaSlice(t, []float64{1.1, 1.2}, m.Values[2], 1e-12)
}

func TestBuildColumnOrderFollowsUnderlyings(t *testing.T) {
	table := fixture(t)
	m, err := Build(table, datetime.MustParseDate("2020-01-01"), dates("2020-01-04"), []string{"B", "A"})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.8, 1.05}, m.Values[0], 1e-12)
}

func TestBuildErrors(t *testing.T) {
	table := fixture(t)
	start := datetime.MustParseDate("2020-01-01")

	tests := []struct {
		name     string
		start    time.Time
		schedule []time.Time
		assets   []string
		expected error
	}{
		{"Missing start date", datetime.MustParseDate("2019-12-31"), dates("2020-01-02"), []string{"A"}, pricetable.ErrMissingDate},
		{"Missing observation date", start, dates("2020-01-02", "2020-02-01"), []string{"A"}, pricetable.ErrMissingDate},
		{"Missing asset", start, dates("2020-01-02"), []string{"A", "C"}, pricetable.ErrMissingAsset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(table, tt.start, tt.schedule, tt.assets)
			if !errors.Is(err, tt.expected) {
				t.Errorf("Build() error = %v, expected %v", err, tt.expected)
			}
		})
	}
}

func TestStartRatios(t *testing.T) {
	table := fixture(t)
	r, err := StartRatios(table, datetime.MustParseDate("2020-01-03"), []string{"A", "B"})
	require.NoError(t, err)
	for _, v := range r {
		assert.Equal(t, 1.0, v)
	}
}

func TestWorstContinuous(t *testing.T) {
	table := fixture(t)
	start := datetime.MustParseDate("2020-01-01")

	tests := []struct {
		name     string
		end      string
		expected float64
	}{
		{"Start only", "2020-01-01", 1.0},
		{"Through dip", "2020-01-03", 0.6},
		{"Whole window", "2020-01-05", 0.6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := WorstContinuous(table, start, datetime.MustParseDate(tt.end), []string{"A", "B"})
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 1e-12)
		})
	}

	t.Run("Bounded by observation window", func(t *testing.T) {
		got, err := WorstContinuous(table, datetime.MustParseDate("2020-01-04"), datetime.MustParseDate("2020-01-05"), []string{"B"})
		require.NoError(t, err)
		assert.InDelta(t, 1.0, got, 1e-12)
	})

	t.Run("Missing end date", func(t *testing.T) {
		_, err := WorstContinuous(table, start, datetime.MustParseDate("2020-01-09"), []string{"A"})
		assert.ErrorIs(t, err, pricetable.ErrMissingDate)
	})
}

func TestWorst(t *testing.T) {
	m := &Matrix{Values: [][]float64{{0.9, 0.8, 1.1}, {0.7, 0.7, 0.9}}}

	assert.Equal(t, 0.8, m.Worst(0))
	assert.Equal(t, 1, m.WorstAsset(0))
	assert.Equal(t, 0, m.WorstAsset(1), "ties resolve to the first asset")
}

func TestLockWorst(t *testing.T) {
	m := &Matrix{
		Assets: []string{"A", "B"},
		Dates:  dates("2020-07-01", "2021-01-01", "2021-07-01"),
		Values: [][]float64{
			{0.9, 1.2},
			{1.1, 0.85},
			{0.7, 1.3},
		},
	}

	t.Run("Lock at second observation", func(t *testing.T) {
		locked, asset, err := m.LockWorst(2)
		require.NoError(t, err)
		assert.Equal(t, 1, asset)
		assert.Equal(t, []float64{0.9, 1.2}, locked.Values[0])
		assert.Equal(t, []float64{0.85, 0.85}, locked.Values[1])
		assert.Equal(t, []float64{1.3, 1.3}, locked.Values[2])
	})

	t.Run("Input is not mutated", func(t *testing.T) {
		_, _, err := m.LockWorst(1)
		require.NoError(t, err)
		assert.Equal(t, []float64{1.1, 0.85}, m.Values[1])
	})

	t.Run("Out of range", func(t *testing.T) {
		for _, obs := range []int{0, 4} {
			_, _, err := m.LockWorst(obs)
			assert.ErrorIs(t, err, ErrObservationOutOfRange)
		}
	})
}

func TestWorstPropagatesNaN(t *testing.T) {
	m := &Matrix{Values: [][]float64{{0.9, math.NaN()}}}
	assert.True(t, math.IsNaN(m.Worst(0)))
}
