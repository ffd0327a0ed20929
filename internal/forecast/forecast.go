// Package forecast defines the data structures related to a given forecast and
// includes functions for computing the forecasts.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/iwvelando/autocall-forecast/internal/config"
	"github.com/iwvelando/autocall-forecast/internal/montecarlo"
	"github.com/iwvelando/autocall-forecast/pkg/adapters"
	"github.com/iwvelando/autocall-forecast/pkg/autocall"
	"github.com/iwvelando/autocall-forecast/pkg/constants"
	"github.com/iwvelando/autocall-forecast/pkg/datetime"
	"github.com/iwvelando/autocall-forecast/pkg/pricetable"
	"github.com/iwvelando/autocall-forecast/pkg/simulation"
	"go.uber.org/zap"
)

// ErrNoPriceSource is returned when historical prices are needed but no
// provider was supplied.
var ErrNoPriceSource = errors.New("no price source")

// Forecast holds all information related to a specific product evaluation.
type Forecast struct {
	Name         string
	Info         autocall.Info
	Source       string
	Schedule     []time.Time
	Result       autocall.Result
	Prices       *pricetable.Table   // the product's underlyings over its life
	Distribution *montecarlo.Summary // nil unless simulation paths are configured
	Notes        []string
}

// GetForecast evaluates every active product. Historical prices come from
// prices; with a simulated data source prices is only consulted for parameter
// estimation and may be nil otherwise.
func GetForecast(ctx context.Context, logger *zap.Logger, conf config.Configuration, prices pricetable.Provider) ([]Forecast, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	products, err := adapters.ToProducts(conf.ActiveProducts())
	if err != nil {
		return nil, err
	}

	assets := conf.Assets()
	registry, fallback, err := adapters.ToCalendars(conf.Calendar, assets)
	if err != nil {
		return nil, err
	}
	evaluator := autocall.NewEvaluator(logger, nil, registry, fallback)
	runner := montecarlo.NewRunner(logger, evaluator)
	simulator := simulation.NewSimulator(logger)

	var results []Forecast
	for _, product := range products {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dates, err := evaluator.Schedule(product)
		if err != nil {
			return nil, err
		}
		end := dates[len(dates)-1]

		result := Forecast{
			Name:     product.Name,
			Info:     product.Info(),
			Source:   conf.Data.Source,
			Schedule: dates,
		}

		var params *simulation.Parameters
		if conf.Data.Source == constants.DataSourceSimulated || (conf.Simulation.Paths > 0 && conf.Simulation.EstimateFrom != "") {
			params, err = simulationParameters(ctx, conf, product, end, prices)
			if err != nil {
				return nil, fmt.Errorf("product %s: %w", product.Name, err)
			}
		}

		var table *pricetable.Table
		if conf.Data.Source == constants.DataSourceSimulated {
			table, err = simulator.Simulate(*params)
		} else {
			if prices == nil {
				return nil, fmt.Errorf("product %s: %w", product.Name, ErrNoPriceSource)
			}
			table, err = prices.Fetch(ctx, product.StartDate, end, product.Underlyings)
		}
		if err != nil {
			return nil, fmt.Errorf("product %s: %w", product.Name, err)
		}

		result.Result, err = evaluator.Evaluate(product, table)
		if err != nil {
			return nil, fmt.Errorf("product %s: %w", product.Name, err)
		}
		result.Prices, err = table.Slice(product.StartDate, end, product.Underlyings)
		if err != nil {
			return nil, fmt.Errorf("product %s: %w", product.Name, err)
		}
		result.Notes = describe(result.Result, dates)

		if conf.Simulation.Paths > 0 && params != nil {
			result.Distribution, err = runner.Run(ctx, product, *params, conf.Simulation.Paths, conf.Simulation.Workers)
			if err != nil {
				return nil, fmt.Errorf("product %s: %w", product.Name, err)
			}
		}

		logger.Debug(fmt.Sprintf("evaluated product %s", product.Name),
			zap.String("op", "forecast.GetForecast"),
			zap.String("outcome", result.Result.Outcome.String()),
			zap.Float64("payoff", result.Result.Payoff),
		)
		results = append(results, result)
	}

	return results, nil
}

// simulationParameters builds the parameters for product, estimating them
// from history when an estimation window is configured. The horizon is
// stretched to cover the last observation.
func simulationParameters(ctx context.Context, conf config.Configuration, product autocall.Product, end time.Time, prices pricetable.Provider) (*simulation.Parameters, error) {
	assets := conf.SimulationAssets()
	for _, u := range product.Underlyings {
		if !slices.Contains(assets, u) {
			return nil, fmt.Errorf("%w: underlying %s is not a simulation asset", simulation.ErrShapeMismatch, u)
		}
	}

	horizon := conf.Simulation.HorizonDays
	if span := int(end.Sub(product.StartDate).Hours() / 24); span > horizon {
		horizon = span
	}
	if horizon > constants.MaxHorizonDays {
		return nil, fmt.Errorf("%w: horizon of %d days exceeds %d", simulation.ErrShapeMismatch, horizon, constants.MaxHorizonDays)
	}

	if conf.Simulation.EstimateFrom == "" {
		p := adapters.ToSimulationParameters(conf.Simulation, assets, product.StartDate, horizon)
		return &p, nil
	}

	if prices == nil {
		return nil, ErrNoPriceSource
	}
	from, err := datetime.ParseDate(conf.Simulation.EstimateFrom)
	if err != nil {
		return nil, err
	}
	to := product.StartDate
	if conf.Simulation.EstimateTo != "" {
		if to, err = datetime.ParseDate(conf.Simulation.EstimateTo); err != nil {
			return nil, err
		}
	}

	history, err := prices.Fetch(ctx, from, to, assets)
	if err != nil {
		return nil, fmt.Errorf("failed to load estimation window: %w", err)
	}
	est, err := simulation.EstimateParameters(history, assets, from, to)
	if err != nil {
		return nil, err
	}

	initial := conf.Simulation.InitialPrices
	if initial == nil {
		// Start the paths from the last observed closes.
		last := history.Len() - 1
		initial = make([]float64, len(assets))
		for j := range assets {
			initial[j] = history.At(last, j)
		}
	}

	var seed *uint64
	if conf.Simulation.Seed != nil {
		seed = simulation.Seed(*conf.Simulation.Seed)
	}
	p := est.Parameters(horizon, product.StartDate, seed, initial)
	return &p, nil
}

func describe(r autocall.Result, dates []time.Time) []string {
	var notes []string
	if r.Observation >= 1 && r.Observation <= len(dates) {
		notes = append(notes, fmt.Sprintf("%s at observation %d (%s)", r.Outcome, r.Observation, datetime.Format(dates[r.Observation-1])))
	}
	if r.KnockedIn {
		notes = append(notes, "knocked in")
	}
	if r.AccrualCount > 0 {
		notes = append(notes, fmt.Sprintf("%d monthly coupons accrued", r.AccrualCount))
	}
	return notes
}
