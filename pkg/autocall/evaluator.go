package autocall

import (
	"fmt"
	"math"
	"time"

	"github.com/iwvelando/autocall-forecast/pkg/calendar"
	"github.com/iwvelando/autocall-forecast/pkg/constants"
	"github.com/iwvelando/autocall-forecast/pkg/pricetable"
	"github.com/iwvelando/autocall-forecast/pkg/ratio"
	"github.com/iwvelando/autocall-forecast/pkg/schedule"
	"go.uber.org/zap"
)

// Evaluator turns a product and a price table into a Result. It holds no
// per-evaluation state and is safe for concurrent use.
type Evaluator struct {
	logger    *zap.Logger
	schedules schedule.Provider
	calendars map[string]calendar.Calendar
	fallback  calendar.Calendar
}

// NewEvaluator creates an evaluator. calendars maps underlyings to their
// market calendar; fallback applies to every product and may be nil.
// If logger is nil, it will use a no-op logger to prevent panics. A nil
// schedules uses the default generator.
func NewEvaluator(logger *zap.Logger, schedules schedule.Provider, calendars map[string]calendar.Calendar, fallback calendar.Calendar) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if schedules == nil {
		schedules = schedule.NewGenerator()
	}
	return &Evaluator{
		logger:    logger,
		schedules: schedules,
		calendars: calendars,
		fallback:  fallback,
	}
}

// Schedule returns the observation dates the product is evaluated on.
// MonthlyPay products are observed every month.
func (e *Evaluator) Schedule(product Product) ([]time.Time, error) {
	period := product.PeriodMonths
	if _, ok := product.policy().(MonthlyPay); ok {
		period = constants.MonthlyPeriod
	}
	cal := calendar.JointFor(product.Underlyings, e.calendars, e.fallback)
	dates, err := e.schedules.Generate(product.MaturityYears, period, product.StartDate, cal, product.HolidayAware)
	if err != nil {
		return nil, fmt.Errorf("failed to generate schedule for %s: %w", product.Name, err)
	}
	return dates, nil
}

// Evaluate runs product against table.
func (e *Evaluator) Evaluate(product Product, table *pricetable.Table) (Result, error) {
	if err := product.Validate(); err != nil {
		return Result{}, err
	}

	dates, err := e.Schedule(product)
	if err != nil {
		return Result{}, err
	}

	m, err := ratio.Build(table, product.StartDate, dates, product.Underlyings)
	if err != nil {
		return Result{}, fmt.Errorf("failed to build ratios for %s: %w", product.Name, err)
	}

	kiWorst := math.NaN()
	switch product.policy().(type) {
	case KnockIn, LizardKnockIn:
		kiWorst, err = ratio.WorstContinuous(table, product.StartDate, dates[len(dates)-1], product.Underlyings)
		if err != nil {
			return Result{}, fmt.Errorf("failed to scan knock-in window for %s: %w", product.Name, err)
		}
	}

	result, err := EvaluateMatrix(product, m, kiWorst)
	if err != nil {
		return Result{}, fmt.Errorf("failed to evaluate %s: %w", product.Name, err)
	}

	e.logger.Debug("evaluated product",
		zap.String("op", "autocall.Evaluate"),
		zap.String("product", product.Name),
		zap.String("variant", product.Variant()),
		zap.String("outcome", result.Outcome.String()),
		zap.Int("months", result.Months),
		zap.Float64("payoff", result.Payoff),
	)
	return result, nil
}
