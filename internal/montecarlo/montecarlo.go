// Package montecarlo evaluates a product across many simulated price
// histories and summarises the outcome distribution.
package montecarlo

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/iwvelando/autocall-forecast/pkg/autocall"
	"github.com/iwvelando/autocall-forecast/pkg/constants"
	"github.com/iwvelando/autocall-forecast/pkg/simulation"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// ErrInvalidRun is returned for non-positive or excessive path counts.
var ErrInvalidRun = errors.New("invalid monte carlo run")

// Summary is the outcome distribution of one run.
type Summary struct {
	Paths           int
	BaseSeed        uint64
	Counts          map[autocall.Outcome]int
	MeanPayoff      float64
	StdDevPayoff    float64
	MeanMonths      float64
	LossProbability float64
	Percentiles     map[float64]float64 // payoff quantiles keyed by probability
}

// Probability returns the share of paths that ended in outcome o.
func (s *Summary) Probability(o autocall.Outcome) float64 {
	if s.Paths == 0 {
		return 0
	}
	return float64(s.Counts[o]) / float64(s.Paths)
}

// SummaryQuantiles are the payoff quantiles reported in a Summary.
var SummaryQuantiles = []float64{0.05, 0.5, 0.95}

// Runner simulates and evaluates paths over a bounded worker pool.
type Runner struct {
	logger    *zap.Logger
	simulator *simulation.Simulator
	evaluator *autocall.Evaluator
}

// NewRunner creates a runner.
// If logger is nil, it will use a no-op logger to prevent panics.
func NewRunner(logger *zap.Logger, evaluator *autocall.Evaluator) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if evaluator == nil {
		evaluator = autocall.NewEvaluator(logger, nil, nil, nil)
	}
	return &Runner{
		logger:    logger,
		simulator: simulation.NewSimulator(logger),
		evaluator: evaluator,
	}
}

// Run evaluates product on paths simulations. Path i is simulated with seed
// base+i, where base is params.Seed or a fresh random seed, so a seeded run
// is reproducible regardless of worker scheduling. The first failing path
// cancels the paths that have not started yet. Cancelling ctx does the same
// and returns ctx.Err().
func (r *Runner) Run(ctx context.Context, product autocall.Product, params simulation.Parameters, paths, workers int) (*Summary, error) {
	if paths < 1 || paths > constants.MaxPaths {
		return nil, fmt.Errorf("%w: paths must be within 1..%d, got %d", ErrInvalidRun, constants.MaxPaths, paths)
	}
	if workers < 1 {
		workers = constants.DefaultWorkers
	}

	base, err := baseSeed(params.Seed)
	if err != nil {
		return nil, err
	}

	results := make([]autocall.Result, paths)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < paths; i++ {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := r.evaluatePath(product, params, base+uint64(i))
			if err != nil {
				return fmt.Errorf("path %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summary := Summarize(results)
	summary.BaseSeed = base

	r.logger.Debug("monte carlo run complete",
		zap.String("op", "montecarlo.Run"),
		zap.String("product", product.Name),
		zap.Int("paths", paths),
		zap.Int("workers", workers),
		zap.Uint64("baseSeed", base),
		zap.Float64("meanPayoff", summary.MeanPayoff),
	)
	return summary, nil
}

func (r *Runner) evaluatePath(product autocall.Product, params simulation.Parameters, seed uint64) (autocall.Result, error) {
	p := params
	p.Seed = simulation.Seed(seed)
	table, err := r.simulator.Simulate(p)
	if err != nil {
		return autocall.Result{}, err
	}
	return r.evaluator.Evaluate(product, table)
}

func baseSeed(seed *uint64) (uint64, error) {
	if seed != nil {
		return *seed, nil
	}
	src, err := simulation.NewSource(nil)
	if err != nil {
		return 0, err
	}
	return src.Uint64(), nil
}

// Summarize aggregates results in order.
func Summarize(results []autocall.Result) *Summary {
	s := &Summary{
		Paths:       len(results),
		Counts:      make(map[autocall.Outcome]int),
		Percentiles: make(map[float64]float64),
	}
	if len(results) == 0 {
		return s
	}

	payoffs := make([]float64, len(results))
	months := make([]float64, len(results))
	losses := 0
	for i, res := range results {
		s.Counts[res.Outcome]++
		payoffs[i] = res.Payoff
		months[i] = float64(res.Months)
		if res.Loss() {
			losses++
		}
	}

	s.MeanPayoff, s.StdDevPayoff = stat.PopMeanStdDev(payoffs, nil)
	s.MeanMonths = stat.Mean(months, nil)
	s.LossProbability = float64(losses) / float64(len(results))

	sort.Float64s(payoffs)
	for _, q := range SummaryQuantiles {
		s.Percentiles[q] = stat.Quantile(q, stat.Empirical, payoffs, nil)
	}
	return s
}
