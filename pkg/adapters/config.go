// Package adapters provides adapter implementations between different package interfaces.
package adapters

import (
	"fmt"
	"time"

	"github.com/iwvelando/autocall-forecast/internal/config"
	"github.com/iwvelando/autocall-forecast/pkg/autocall"
	"github.com/iwvelando/autocall-forecast/pkg/calendar"
	"github.com/iwvelando/autocall-forecast/pkg/constants"
	"github.com/iwvelando/autocall-forecast/pkg/datetime"
	"github.com/iwvelando/autocall-forecast/pkg/simulation"
)

// ToProduct converts a configured product into an autocall.Product and
// validates it.
func ToProduct(p config.Product) (autocall.Product, error) {
	start, err := datetime.ParseDate(p.StartDate)
	if err != nil {
		return autocall.Product{}, fmt.Errorf("product %s: %w", p.Name, err)
	}

	policy, err := ToPolicy(p)
	if err != nil {
		return autocall.Product{}, err
	}

	product := autocall.Product{
		Name:          p.Name,
		Underlyings:   append([]string(nil), p.Underlyings...),
		StartDate:     start,
		MaturityYears: p.Maturity,
		PeriodMonths:  p.Period,
		Coupon:        p.Coupon,
		Barriers:      append([]float64(nil), p.Barriers...),
		Policy:        policy,
		HolidayAware:  p.HolidayAware,
	}
	if err := product.Validate(); err != nil {
		return autocall.Product{}, fmt.Errorf("product %s: %w", p.Name, err)
	}
	return product, nil
}

// ToPolicy builds the variant policy named by p.Variant.
func ToPolicy(p config.Product) (autocall.Policy, error) {
	multiplier := p.LizardCoupon
	if multiplier == 0 {
		multiplier = constants.DefaultLizardCouponMultiplier
	}
	lizard := autocall.Lizard{Schedule: p.LizardSchedule(), CouponMultiplier: multiplier}

	switch p.Variant {
	case "", constants.VariantPlain:
		return autocall.Plain{}, nil
	case constants.VariantLock:
		return autocall.Lock{Observation: p.LockObservation}, nil
	case constants.VariantKnockIn:
		return autocall.KnockIn{Barrier: p.KnockInBarrier}, nil
	case constants.VariantLizard:
		return lizard, nil
	case constants.VariantLizardKnockIn:
		return autocall.LizardKnockIn{Lizard: lizard, KnockInBarrier: p.KnockInBarrier}, nil
	case constants.VariantMonthlyPay:
		return autocall.MonthlyPay{Barrier: p.MonthlyPayBarrier}, nil
	default:
		return nil, fmt.Errorf("product %s: %w: unknown variant %q", p.Name, autocall.ErrInvalidProduct, p.Variant)
	}
}

// ToProducts converts every product, stopping at the first failure.
func ToProducts(products []config.Product) ([]autocall.Product, error) {
	if products == nil {
		return nil, nil
	}

	out := make([]autocall.Product, 0, len(products))
	for _, p := range products {
		converted, err := ToProduct(p)
		if err != nil {
			return nil, err
		}
		out = append(out, converted)
	}
	return out, nil
}

// ToCalendars builds the per-underlying holiday calendars for assets and the
// fallback applied to every product. Weekends are closed on every calendar
// when configured; otherwise the fallback opens every day.
func ToCalendars(c config.CalendarConfig, assets []string) (map[string]calendar.Calendar, calendar.Calendar, error) {
	registry := make(map[string]calendar.Calendar)
	for _, asset := range assets {
		dates, ok := config.Lookup(c.Holidays, asset)
		if !ok {
			continue
		}
		h, err := calendar.NewHolidays(asset, c.Weekends, dates)
		if err != nil {
			return nil, nil, fmt.Errorf("calendar for %s: %w", asset, err)
		}
		registry[asset] = h
	}

	var fallback calendar.Calendar = calendar.AllDays{}
	if c.Weekends {
		fallback = calendar.Weekends{}
	}
	return registry, fallback, nil
}

// ToSimulationParameters converts the simulation section for the given asset
// order. Assets without a configured mean or volatility get zero, leaving
// their path flat.
func ToSimulationParameters(s config.SimulationConfig, assets []string, start time.Time, horizonDays int) simulation.Parameters {
	means := make(map[string]float64, len(assets))
	vols := make(map[string]float64, len(assets))
	for _, a := range assets {
		means[a], _ = config.Lookup(s.MeanReturns, a)
		vols[a], _ = config.Lookup(s.Volatilities, a)
	}

	var seed *uint64
	if s.Seed != nil {
		seed = simulation.Seed(*s.Seed)
	}

	return simulation.Parameters{
		Assets:        append([]string(nil), assets...),
		HorizonDays:   horizonDays,
		MeanReturns:   means,
		Volatilities:  vols,
		Correlation:   s.Correlation,
		Seed:          seed,
		InitialPrices: s.InitialPrices,
		StartDate:     start,
	}
}
