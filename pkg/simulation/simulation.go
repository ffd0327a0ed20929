// Package simulation generates synthetic correlated multi-asset price paths
// under geometric Brownian motion. Daily log-return increments
// (mean - vol^2/2) + vol*z are drawn per asset, correlated across assets with
// the Cholesky factor of a target correlation matrix, accumulated and
// exponentiated into price levels.
package simulation

import (
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/iwvelando/autocall-forecast/pkg/constants"
	"github.com/iwvelando/autocall-forecast/pkg/datetime"
	"github.com/iwvelando/autocall-forecast/pkg/mathutil"
	"github.com/iwvelando/autocall-forecast/pkg/pricetable"
	"go.uber.org/zap"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// symmetryTolerance bounds |c[i][j] - c[j][i]| for an accepted correlation matrix.
	symmetryTolerance = 1e-9

	// semidefiniteTolerance is the magnitude below which eigenvalues and
	// pivots of a correlation matrix count as zero.
	semidefiniteTolerance = 1e-10
)

var (
	// ErrShapeMismatch is returned when simulation inputs are dimensionally inconsistent.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrInvalidCorrelation is returned for asymmetric or non positive semi-definite correlation matrices.
	ErrInvalidCorrelation = errors.New("invalid correlation matrix")

	// ErrInvalidParameters is returned for non-finite drifts or negative volatilities.
	ErrInvalidParameters = errors.New("invalid simulation parameters")
)

// Parameters describes one simulation run.
type Parameters struct {
	Assets        []string
	HorizonDays   int
	MeanReturns   map[string]float64 // mean daily log return per asset
	Volatilities  map[string]float64 // daily volatility per asset
	Correlation   [][]float64        // nil means independent assets
	Seed          *uint64            // nil draws a seed from crypto/rand
	InitialPrices []float64          // nil means 1.0 per asset
	StartDate     time.Time
}

// Simulator produces price tables from Parameters.
type Simulator struct {
	logger *zap.Logger
}

// NewSimulator creates a simulator with the given logger.
// If logger is nil, it will use a no-op logger to prevent panics.
func NewSimulator(logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{logger: logger}
}

// Seed returns a pointer to s, for populating Parameters.Seed.
func Seed(s uint64) *uint64 {
	return &s
}

// NewSource returns the random source for a run: deterministic when seed is
// set, otherwise seeded from the operating system's entropy pool.
func NewSource(seed *uint64) (rand.Source, error) {
	if seed != nil {
		return rand.NewSource(*seed), nil
	}
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return nil, fmt.Errorf("failed to read entropy for simulation seed: %w", err)
	}
	return rand.NewSource(binary.LittleEndian.Uint64(b[:])), nil
}

// Simulate runs one simulation with a source scoped to this call.
func (s *Simulator) Simulate(p Parameters) (*pricetable.Table, error) {
	src, err := NewSource(p.Seed)
	if err != nil {
		return nil, err
	}
	return s.SimulateWithSource(p, src)
}

// SimulateWithSource runs one simulation drawing from src. The caller owns
// src; it must not be shared with concurrent simulations.
func (s *Simulator) SimulateWithSource(p Parameters, src rand.Source) (*pricetable.Table, error) {
	if len(p.Assets) == 0 {
		return nil, fmt.Errorf("%w: no assets", ErrShapeMismatch)
	}
	if p.HorizonDays < 1 || p.HorizonDays > constants.MaxHorizonDays {
		return nil, fmt.Errorf("%w: horizon must be within 1..%d days, got %d", ErrShapeMismatch, constants.MaxHorizonDays, p.HorizonDays)
	}

	increments, err := DrawIncrements(p.Assets, p.HorizonDays, p.MeanReturns, p.Volatilities, src)
	if err != nil {
		return nil, err
	}

	correlated, err := Correlate(increments, p.Correlation)
	if err != nil {
		return nil, err
	}

	levels, err := PriceLevels(correlated, p.InitialPrices)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("simulated price paths",
		zap.String("op", "simulation.Simulate"),
		zap.Int("assets", len(p.Assets)),
		zap.Int("horizonDays", p.HorizonDays),
		zap.Bool("correlated", p.Correlation != nil),
	)

	return toTable(p.Assets, p.StartDate, levels)
}

// DrawIncrements draws horizon GBM log-return increments per asset, asset by
// asset, from src.
func DrawIncrements(assets []string, horizon int, means, vols map[string]float64, src rand.Source) ([][]float64, error) {
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	out := make([][]float64, len(assets))
	for i, a := range assets {
		mu, ok := means[a]
		if !ok {
			return nil, fmt.Errorf("%w: no mean return for %s", ErrShapeMismatch, a)
		}
		sigma, ok := vols[a]
		if !ok {
			return nil, fmt.Errorf("%w: no volatility for %s", ErrShapeMismatch, a)
		}
		if !mathutil.IsFinite(mu) || !mathutil.IsFinite(sigma) || sigma < 0 {
			return nil, fmt.Errorf("%w: %s mean %v volatility %v", ErrInvalidParameters, a, mu, sigma)
		}
		drift := mu - 0.5*sigma*sigma
		row := make([]float64, horizon)
		for d := range row {
			row[d] = drift + sigma*normal.Rand()
		}
		out[i] = row
	}
	return out, nil
}

// Correlate stacks the per-asset increment streams into an
// (assets x horizon) matrix and left-multiplies it by the Cholesky factor of
// corr. A nil corr leaves the streams independent.
func Correlate(increments [][]float64, corr [][]float64) (*mat.Dense, error) {
	n := len(increments)
	if n == 0 {
		return nil, fmt.Errorf("%w: no increment streams", ErrShapeMismatch)
	}
	horizon := len(increments[0])
	for i, row := range increments {
		if len(row) != horizon {
			return nil, fmt.Errorf("%w: stream %d has %d increments, expected %d", ErrShapeMismatch, i, len(row), horizon)
		}
	}
	if horizon == 0 {
		return nil, fmt.Errorf("%w: empty increment streams", ErrShapeMismatch)
	}

	z := mat.NewDense(n, horizon, nil)
	for i, row := range increments {
		z.SetRow(i, row)
	}
	if corr == nil {
		return z, nil
	}

	l, err := CholeskyFactor(corr, n)
	if err != nil {
		return nil, err
	}
	var out mat.Dense
	out.Mul(l, z)
	return &out, nil
}

// CholeskyFactor validates corr as an n x n symmetric positive semi-definite
// matrix and returns its lower-triangular factor.
func CholeskyFactor(corr [][]float64, n int) (*mat.TriDense, error) {
	if len(corr) != n {
		return nil, fmt.Errorf("%w: correlation matrix has %d rows for %d assets", ErrShapeMismatch, len(corr), n)
	}
	data := make([]float64, 0, n*n)
	for i, row := range corr {
		if len(row) != n {
			return nil, fmt.Errorf("%w: correlation row %d has %d entries for %d assets", ErrShapeMismatch, i, len(row), n)
		}
		data = append(data, row...)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if math.Abs(corr[i][j]-corr[j][i]) > symmetryTolerance {
				return nil, fmt.Errorf("%w: not symmetric at (%d,%d)", ErrInvalidCorrelation, i, j)
			}
		}
	}

	sym := mat.NewSymDense(n, data)
	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return semidefiniteFactor(sym, n)
	}
	var l mat.TriDense
	chol.LTo(&l)
	return &l, nil
}

// semidefiniteFactor returns a lower-triangular L with L·Lᵀ = sym for a
// singular positive semi-definite sym. Columns whose pivot vanishes are left
// at zero, so perfectly correlated assets share increments.
func semidefiniteFactor(sym *mat.SymDense, n int) (*mat.TriDense, error) {
	var eig mat.EigenSym
	if ok := eig.Factorize(sym, false); !ok {
		return nil, fmt.Errorf("%w: eigendecomposition failed", ErrInvalidCorrelation)
	}
	if lowest := floats.Min(eig.Values(nil)); lowest < -semidefiniteTolerance {
		return nil, fmt.Errorf("%w: not positive semi-definite (eigenvalue %g)", ErrInvalidCorrelation, lowest)
	}

	l := mat.NewTriDense(n, mat.Lower, nil)
	for j := 0; j < n; j++ {
		d := sym.At(j, j)
		for k := 0; k < j; k++ {
			d -= l.At(j, k) * l.At(j, k)
		}
		if d <= semidefiniteTolerance {
			continue
		}
		pivot := math.Sqrt(d)
		l.SetTri(j, j, pivot)
		for i := j + 1; i < n; i++ {
			v := sym.At(i, j)
			for k := 0; k < j; k++ {
				v -= l.At(i, k) * l.At(j, k)
			}
			l.SetTri(i, j, v/pivot)
		}
	}
	return l, nil
}

// PriceLevels converts correlated increments into price paths of length
// horizon+1 per asset, day 0 being the initial price.
func PriceLevels(increments *mat.Dense, initial []float64) ([][]float64, error) {
	n, horizon := increments.Dims()
	if initial == nil {
		initial = make([]float64, n)
		for i := range initial {
			initial[i] = constants.DefaultInitialPrice
		}
	}
	if len(initial) != n {
		return nil, fmt.Errorf("%w: %d initial prices for %d assets", ErrShapeMismatch, len(initial), n)
	}

	levels := make([][]float64, n)
	cum := make([]float64, horizon)
	for i := 0; i < n; i++ {
		if !(initial[i] > 0) {
			return nil, fmt.Errorf("%w: initial price %v for asset %d", ErrInvalidParameters, initial[i], i)
		}
		floats.CumSum(cum, mat.Row(nil, i, increments))
		path := make([]float64, horizon+1)
		path[0] = initial[i]
		for d, c := range cum {
			path[d+1] = initial[i] * math.Exp(c)
		}
		levels[i] = path
	}
	return levels, nil
}

func toTable(assets []string, start time.Time, levels [][]float64) (*pricetable.Table, error) {
	days := len(levels[0])
	start = datetime.Truncate(start)
	dates := make([]time.Time, days)
	prices := make([][]float64, days)
	for d := 0; d < days; d++ {
		dates[d] = datetime.OffsetDays(start, d)
		row := make([]float64, len(assets))
		for i := range assets {
			row[i] = levels[i][d]
		}
		prices[d] = row
	}
	return pricetable.New(assets, dates, prices)
}
