package simulation

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/iwvelando/autocall-forecast/pkg/pricetable"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrInsufficientHistory is returned when a window holds fewer than two returns.
var ErrInsufficientHistory = errors.New("insufficient price history")

// Estimate holds per-asset daily log-return statistics measured from history.
type Estimate struct {
	Assets       []string
	MeanReturns  map[string]float64
	Volatilities map[string]float64
	Correlation  [][]float64
	Observations int // number of daily returns used
}

// EstimateParameters measures mean daily log return, population daily
// volatility and the Pearson correlation of daily log returns for assets over
// [start, end] inclusive.
func EstimateParameters(table *pricetable.Table, assets []string, start, end time.Time) (*Estimate, error) {
	window, err := table.Slice(start, end, assets)
	if err != nil {
		return nil, err
	}
	n := window.Len() - 1
	if n < 2 {
		return nil, fmt.Errorf("%w: %d returns between %s and %s", ErrInsufficientHistory, n, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	returns := mat.NewDense(n, len(assets), nil)
	est := &Estimate{
		Assets:       append([]string(nil), assets...),
		MeanReturns:  make(map[string]float64, len(assets)),
		Volatilities: make(map[string]float64, len(assets)),
		Observations: n,
	}
	for j, a := range assets {
		series, err := window.Series(a)
		if err != nil {
			return nil, err
		}
		r := make([]float64, n)
		for i := range r {
			r[i] = math.Log(series[i+1] / series[i])
		}
		returns.SetCol(j, r)

		mean, variance := stat.PopMeanVariance(r, nil)
		est.MeanReturns[a] = mean
		est.Volatilities[a] = math.Sqrt(variance)
	}

	var corr mat.SymDense
	stat.CorrelationMatrix(&corr, returns, nil)
	est.Correlation = make([][]float64, len(assets))
	for i := range assets {
		row := make([]float64, len(assets))
		for j := range assets {
			v := corr.At(i, j)
			if math.IsNaN(v) {
				// A flat series has no defined correlation; treat it as independent.
				v = 0
				if i == j {
					v = 1
				}
			}
			row[j] = v
		}
		est.Correlation[i] = row
	}
	return est, nil
}

// Parameters builds simulation parameters from the estimate.
func (e *Estimate) Parameters(horizonDays int, start time.Time, seed *uint64, initialPrices []float64) Parameters {
	return Parameters{
		Assets:        append([]string(nil), e.Assets...),
		HorizonDays:   horizonDays,
		MeanReturns:   e.MeanReturns,
		Volatilities:  e.Volatilities,
		Correlation:   e.Correlation,
		Seed:          seed,
		InitialPrices: initialPrices,
		StartDate:     start,
	}
}
